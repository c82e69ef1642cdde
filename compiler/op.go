package compiler

// Op is a source operator.
type Op uint8

const (
	OpIgnore    Op = iota // any character without meaning
	OpIncrement           // +
	OpDecrement           // -
	OpRight               // >
	OpLeft                // <
	OpOutput              // .
	OpInput               // ,
	OpLoopOpen            // [
	OpLoopClose           // ]
)

// callableOps lists the operators compiled to their own function, in
// function index order. Brackets are inlined into the entry function.
var callableOps = [...]Op{OpIncrement, OpDecrement, OpRight, OpLeft, OpOutput, OpInput}

// Classify returns the operator for r.
func Classify(r rune) Op {
	switch r {
	case '+':
		return OpIncrement
	case '-':
		return OpDecrement
	case '>':
		return OpRight
	case '<':
		return OpLeft
	case '.':
		return OpOutput
	case ',':
		return OpInput
	case '[':
		return OpLoopOpen
	case ']':
		return OpLoopClose
	default:
		return OpIgnore
	}
}

// Symbol returns the source character of the operator, or 0 for OpIgnore.
func (o Op) Symbol() byte {
	switch o {
	case OpIncrement:
		return '+'
	case OpDecrement:
		return '-'
	case OpRight:
		return '>'
	case OpLeft:
		return '<'
	case OpOutput:
		return '.'
	case OpInput:
		return ','
	case OpLoopOpen:
		return '['
	case OpLoopClose:
		return ']'
	default:
		return 0
	}
}

func (o Op) String() string {
	if s := o.Symbol(); s != 0 {
		return string(s)
	}
	return "ignore"
}

// Callable reports whether the operator is compiled to a function that the
// entry function calls.
func (o Op) Callable() bool {
	return o >= OpIncrement && o <= OpInput
}

// CallableOps returns the callable operators in function index order.
func CallableOps() []Op {
	ops := callableOps
	return ops[:]
}
