package compiler

import "github.com/wippyai/bf-wasm/errors"

// checkBrackets verifies that every '[' has a matching ']'. The returned
// error carries the byte offset of the first offending bracket.
func checkBrackets(src string) error {
	var open []int
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '[':
			open = append(open, i)
		case ']':
			if len(open) == 0 {
				return errors.Unbalanced(i, "']' without matching '['")
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return errors.Unbalanced(open[0], "'[' is never closed")
	}
	return nil
}
