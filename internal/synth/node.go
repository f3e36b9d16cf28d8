package synth

// Node is a connectable graph vertex.
type Node interface {
	// Connect routes this node's output into dst.
	Connect(dst Node) error
	// ConnectParam routes this node's left channel into p as modulation.
	ConnectParam(p *Param) error
	// Disconnect removes every outgoing connection.
	Disconnect()
	// Inputs returns the number of nodes feeding this one.
	Inputs() int

	core() *node
}

type processor interface {
	process(frame int64, t, inL, inR float64) (float64, float64)
}

type node struct {
	ctx    *Context
	proc   processor
	inputs []*node
	outs   []*node
	params []*Param

	memoFrame    int64
	memoL, memoR float64
}

func (n *node) init(ctx *Context, p processor) {
	n.ctx = ctx
	n.proc = p
}

func (n *node) core() *node { return n }

func (n *node) Connect(dst Node) error {
	d := dst.core()
	if d.ctx != n.ctx {
		return ErrForeignNode
	}
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	d.inputs = append(d.inputs, n)
	n.outs = append(n.outs, d)
	return nil
}

func (n *node) ConnectParam(p *Param) error {
	if p.ctx != n.ctx {
		return ErrForeignNode
	}
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	p.mods = append(p.mods, n)
	n.params = append(n.params, p)
	return nil
}

func (n *node) Disconnect() {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	for _, d := range n.outs {
		d.inputs = removeNode(d.inputs, n)
	}
	for _, p := range n.params {
		p.mods = removeNode(p.mods, n)
	}
	n.outs = nil
	n.params = nil
}

func (n *node) Inputs() int {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return len(n.inputs)
}

// pull renders one frame. The memo is set before inputs are pulled so a
// cycle reads the previous frame instead of recursing forever.
func (n *node) pull(frame int64, t float64) (float64, float64) {
	if n.memoFrame == frame {
		return n.memoL, n.memoR
	}
	n.memoFrame = frame
	var inL, inR float64
	for _, in := range n.inputs {
		l, r := in.pull(frame, t)
		inL += l
		inR += r
	}
	n.memoL, n.memoR = n.proc.process(frame, t, inL, inR)
	return n.memoL, n.memoR
}

func removeNode(list []*node, n *node) []*node {
	out := list[:0]
	for _, x := range list {
		if x != n {
			out = append(out, x)
		}
	}
	for i := len(out); i < len(list); i++ {
		list[i] = nil
	}
	return out
}
