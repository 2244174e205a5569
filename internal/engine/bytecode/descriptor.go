package bytecode

import (
	"fmt"
	"strings"
)

var primitiveDescriptors = map[string]string{
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
	"void":    "V",
}

var descriptorPrimitives = func() map[byte]string {
	out := make(map[byte]string, len(primitiveDescriptors))
	for name, d := range primitiveDescriptors {
		out[d[0]] = name
	}
	return out
}()

// InternalName converts java.lang.String to java/lang/String.
func InternalName(binary string) string {
	return strings.ReplaceAll(binary, ".", "/")
}

// BinaryName converts java/lang/String to java.lang.String.
func BinaryName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// FieldDescriptor encodes a source-level type name ("int", "java.lang.String", "int[]").
func FieldDescriptor(typeName string) string {
	dims := 0
	for strings.HasSuffix(typeName, "[]") {
		typeName = strings.TrimSuffix(typeName, "[]")
		dims++
	}
	d, ok := primitiveDescriptors[typeName]
	if !ok {
		d = "L" + InternalName(typeName) + ";"
	}
	return strings.Repeat("[", dims) + d
}

// MethodDescriptor encodes parameter and return type names.
func MethodDescriptor(params []string, ret string) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range params {
		b.WriteString(FieldDescriptor(p))
	}
	b.WriteByte(')')
	if ret == "" {
		ret = "void"
	}
	b.WriteString(FieldDescriptor(ret))
	return b.String()
}

// ParseMethodDescriptor decodes a method descriptor into source-level type names.
func ParseMethodDescriptor(desc string) ([]string, string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("method descriptor %q must start with '('", desc)
	}
	i := 1
	var params []string
	for i < len(desc) && desc[i] != ')' {
		name, next, err := parseFieldType(desc, i)
		if err != nil {
			return nil, "", err
		}
		params = append(params, name)
		i = next
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("method descriptor %q is missing ')'", desc)
	}
	ret, next, err := parseFieldType(desc, i+1)
	if err != nil {
		return nil, "", err
	}
	if next != len(desc) {
		return nil, "", fmt.Errorf("method descriptor %q has trailing data", desc)
	}
	return params, ret, nil
}

// ParseFieldDescriptor decodes a single field descriptor.
func ParseFieldDescriptor(desc string) (string, error) {
	name, next, err := parseFieldType(desc, 0)
	if err != nil {
		return "", err
	}
	if next != len(desc) {
		return "", fmt.Errorf("field descriptor %q has trailing data", desc)
	}
	return name, nil
}

func parseFieldType(desc string, i int) (string, int, error) {
	dims := 0
	for i < len(desc) && desc[i] == '[' {
		dims++
		i++
	}
	if i >= len(desc) {
		return "", i, fmt.Errorf("truncated descriptor %q", desc)
	}
	var name string
	switch c := desc[i]; c {
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			return "", i, fmt.Errorf("unterminated class type in descriptor %q", desc)
		}
		name = BinaryName(desc[i+1 : i+end])
		i += end + 1
	default:
		prim, ok := descriptorPrimitives[c]
		if !ok {
			return "", i, fmt.Errorf("invalid descriptor character %q in %q", c, desc)
		}
		name = prim
		i++
	}
	return name + strings.Repeat("[]", dims), i, nil
}
