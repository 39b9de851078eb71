package solver

import (
	"fmt"
	"math/big"
	"strings"

	"oath/internal/contract"
)

// sexpr is one node of solver output: an atom or a list.
type sexpr struct {
	atom string
	list []*sexpr
}

func (s *sexpr) isAtom() bool { return s.list == nil }

func (s *sexpr) String() string {
	if s.isAtom() {
		return s.atom
	}
	parts := make([]string, len(s.list))
	for i, c := range s.list {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// tokenize splits solver output into parens and atoms. The symbols we
// declare are plain, so quoting and strings never appear in models.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r == '(' || r == ')':
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func parseSexprs(tokens []string) ([]*sexpr, error) {
	var stack [][]*sexpr
	var top []*sexpr
	for _, tok := range tokens {
		switch tok {
		case "(":
			stack = append(stack, top)
			top = nil
		case ")":
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced parenthesis")
			}
			node := &sexpr{list: top}
			if node.list == nil {
				node.list = []*sexpr{}
			}
			top = append(stack[len(stack)-1], node)
			stack = stack[:len(stack)-1]
		default:
			top = append(top, &sexpr{atom: tok})
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unterminated expression")
	}
	return top, nil
}

// parseModel reads the (get-model) section of solver output into a
// Model. Entries it cannot interpret are dropped rather than failing
// the whole model; evaluation treats missing names as unconstrained.
func parseModel(text string) (contract.Model, error) {
	nodes, err := parseSexprs(tokenize(text))
	if err != nil {
		return nil, err
	}
	model := make(contract.Model)
	for _, node := range nodes {
		if node.isAtom() {
			continue
		}
		entries := node.list
		// Older solvers wrap the list in a leading "model" atom.
		if len(entries) > 0 && entries[0].isAtom() && entries[0].atom == "model" {
			entries = entries[1:]
		}
		for _, entry := range entries {
			name, value, ok := parseDefineFun(entry)
			if ok {
				model[name] = value
			}
		}
	}
	return model, nil
}

// parseDefineFun reads (define-fun name () Sort value). Definitions
// with parameters are internal solver helpers and are skipped.
func parseDefineFun(entry *sexpr) (string, contract.Value, bool) {
	if entry.isAtom() || len(entry.list) != 5 {
		return "", nil, false
	}
	head, name, params := entry.list[0], entry.list[1], entry.list[2]
	if !head.isAtom() || head.atom != "define-fun" || !name.isAtom() {
		return "", nil, false
	}
	if params.isAtom() || len(params.list) != 0 {
		return "", nil, false
	}
	value, err := parseValue(entry.list[4])
	if err != nil {
		return "", nil, false
	}
	return name.atom, value, true
}

func parseValue(node *sexpr) (contract.Value, error) {
	if node.isAtom() {
		switch node.atom {
		case "true":
			return &contract.BoolVal{Val: true}, nil
		case "false":
			return &contract.BoolVal{Val: false}, nil
		}
		v, ok := new(big.Int).SetString(node.atom, 10)
		if !ok {
			return nil, fmt.Errorf("not a value: %s", node.atom)
		}
		return &contract.IntVal{Val: v}, nil
	}
	if len(node.list) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	head := node.list[0]
	switch {
	case head.isAtom() && head.atom == "-" && len(node.list) == 2:
		inner, err := parseValue(node.list[1])
		if err != nil {
			return nil, err
		}
		iv, ok := inner.(*contract.IntVal)
		if !ok {
			return nil, fmt.Errorf("negation of a non-integer")
		}
		return &contract.IntVal{Val: new(big.Int).Neg(iv.Val)}, nil
	case head.isAtom() && head.atom == "store" && len(node.list) == 4:
		return parseStore(node)
	case !head.isAtom():
		// ((as const (Array Int Int)) default)
		if isAsConst(head) && len(node.list) == 2 {
			def, err := parseValue(node.list[1])
			if err != nil {
				return nil, err
			}
			iv, ok := def.(*contract.IntVal)
			if !ok {
				return nil, fmt.Errorf("array default is not an integer")
			}
			return &contract.ArrayVal{Default: iv.Val, Elems: map[int64]*big.Int{}}, nil
		}
	}
	return nil, fmt.Errorf("unsupported model value: %s", node)
}

func parseStore(node *sexpr) (contract.Value, error) {
	base, err := parseValue(node.list[1])
	if err != nil {
		return nil, err
	}
	arr, ok := base.(*contract.ArrayVal)
	if !ok {
		return nil, fmt.Errorf("store into a non-array")
	}
	idx, err := parseValue(node.list[2])
	if err != nil {
		return nil, err
	}
	val, err := parseValue(node.list[3])
	if err != nil {
		return nil, err
	}
	iIdx, ok1 := idx.(*contract.IntVal)
	iVal, ok2 := val.(*contract.IntVal)
	if !ok1 || !ok2 || !iIdx.Val.IsInt64() {
		return nil, fmt.Errorf("non-integer store in model")
	}
	elems := make(map[int64]*big.Int, len(arr.Elems)+1)
	for k, v := range arr.Elems {
		elems[k] = v
	}
	elems[iIdx.Val.Int64()] = iVal.Val
	return &contract.ArrayVal{Default: arr.Default, Elems: elems}, nil
}

func isAsConst(head *sexpr) bool {
	return len(head.list) >= 2 &&
		head.list[0].isAtom() && head.list[0].atom == "as" &&
		head.list[1].isAtom() && head.list[1].atom == "const"
}
