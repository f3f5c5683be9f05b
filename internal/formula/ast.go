package formula

// node is an element of a parsed formula.
type node interface {
	position() int
}

type numberLit struct {
	pos   int
	value float64
}

type stringLit struct {
	pos   int
	value string
}

type boolLit struct {
	pos   int
	value bool
}

type noneLit struct{ pos int }

type ident struct {
	pos  int
	name string
}

type listLit struct {
	pos   int
	items []node
}

type unaryExpr struct {
	pos     int
	op      tokenKind
	operand node
}

type binaryExpr struct {
	pos         int
	op          tokenKind
	left, right node
}

// logicalExpr is a short-circuiting and/or.
type logicalExpr struct {
	pos         int
	op          tokenKind
	left, right node
}

// compareExpr is a comparison chain: a < b <= c means a < b and b <= c.
type compareExpr struct {
	pos      int
	operands []node
	ops      []tokenKind
}

type keywordArg struct {
	name  string
	value node
}

type callExpr struct {
	pos    int
	callee node
	args   []node
	kwargs []keywordArg
}

type indexExpr struct {
	pos    int
	target node
	index  node
}

type memberExpr struct {
	pos    int
	target node
	name   string
}

func (n *numberLit) position() int   { return n.pos }
func (n *stringLit) position() int   { return n.pos }
func (n *boolLit) position() int     { return n.pos }
func (n *noneLit) position() int     { return n.pos }
func (n *ident) position() int       { return n.pos }
func (n *listLit) position() int     { return n.pos }
func (n *unaryExpr) position() int   { return n.pos }
func (n *binaryExpr) position() int  { return n.pos }
func (n *logicalExpr) position() int { return n.pos }
func (n *compareExpr) position() int { return n.pos }
func (n *callExpr) position() int    { return n.pos }
func (n *indexExpr) position() int   { return n.pos }
func (n *memberExpr) position() int  { return n.pos }
