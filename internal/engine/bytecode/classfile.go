package bytecode

import (
	"encoding/binary"
	"fmt"

	errs "hostscript/internal/core/errors"
)

const (
	Magic        uint32 = 0xCAFEBABE
	MajorVersion uint16 = 52
)

// Access flags shared by classes, fields and methods.
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSynchronized uint16 = 0x0020
	AccSuper        uint16 = 0x0020
	AccVolatile     uint16 = 0x0040
	AccVarargs      uint16 = 0x0080
	AccTransient    uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
)

// TrampolineAttribute marks a method whose body lives in the interpreter. Its
// payload is the opaque body handle as a u2-prefixed string.
const TrampolineAttribute = "HostscriptTrampoline"

const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

type ClassFile struct {
	Minor      uint16
	Major      uint16
	Access     uint16
	Name       string // binary form, e.g. java.lang.String
	Super      string // empty only for java.lang.Object
	Interfaces []string
	Fields     []Member
	Methods    []Member
	Attributes []Attribute
}

type Member struct {
	Access     uint16
	Name       string
	Descriptor string
	Attributes []Attribute
}

type Attribute struct {
	Name string
	Data []byte
}

// Attribute returns the first attribute named name.
func (m Member) Attribute(name string) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Trampoline returns the body handle of a trampoline method.
func (m Member) Trampoline() (string, bool) {
	a, ok := m.Attribute(TrampolineAttribute)
	if !ok || len(a.Data) < 2 {
		return "", false
	}
	n := int(binary.BigEndian.Uint16(a.Data))
	if len(a.Data) != 2+n {
		return "", false
	}
	return string(a.Data[2:]), true
}

// NewTrampoline builds the attribute binding a method to body handle.
func NewTrampoline(handle string) (Attribute, error) {
	w := NewWriter(len(handle) + 2)
	if err := w.UTF(handle); err != nil {
		return Attribute{}, err
	}
	data, err := w.Finish()
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{Name: TrampolineAttribute, Data: data}, nil
}

type constantPool struct {
	entries []poolEntry
	utf8    map[string]uint16
	classes map[string]uint16
}

type poolEntry struct {
	tag uint8
	str string
	ref uint16
}

func newConstantPool() *constantPool {
	return &constantPool{utf8: make(map[string]uint16), classes: make(map[string]uint16)}
}

func (p *constantPool) utf(s string) uint16 {
	if idx, ok := p.utf8[s]; ok {
		return idx
	}
	p.entries = append(p.entries, poolEntry{tag: tagUtf8, str: s})
	idx := uint16(len(p.entries))
	p.utf8[s] = idx
	return idx
}

func (p *constantPool) class(binaryName string) uint16 {
	internal := InternalName(binaryName)
	if idx, ok := p.classes[internal]; ok {
		return idx
	}
	ref := p.utf(internal)
	p.entries = append(p.entries, poolEntry{tag: tagClass, ref: ref})
	idx := uint16(len(p.entries))
	p.classes[internal] = idx
	return idx
}

// Encode serializes cf. All strings are interned before anything is written so
// the constant pool precedes its first reference.
func Encode(cf *ClassFile) ([]byte, error) {
	if cf.Name == "" {
		return nil, errs.ByteEmission("class file requires a name")
	}
	pool := newConstantPool()
	thisIdx := pool.class(cf.Name)
	var superIdx uint16
	if cf.Super != "" {
		superIdx = pool.class(cf.Super)
	}
	ifaceIdx := make([]uint16, len(cf.Interfaces))
	for i, iface := range cf.Interfaces {
		ifaceIdx[i] = pool.class(iface)
	}
	internMembers := func(members []Member) {
		for _, m := range members {
			pool.utf(m.Name)
			pool.utf(m.Descriptor)
			for _, a := range m.Attributes {
				pool.utf(a.Name)
			}
		}
	}
	internMembers(cf.Fields)
	internMembers(cf.Methods)
	for _, a := range cf.Attributes {
		pool.utf(a.Name)
	}
	if len(pool.entries) >= 0xFFFF {
		return nil, errs.ByteEmission("constant pool of %s has %d entries, limit is 65534", cf.Name, len(pool.entries))
	}

	major := cf.Major
	if major == 0 {
		major = MajorVersion
	}

	w := NewWriter(1024)
	w.U4(Magic)
	w.U2(cf.Minor)
	w.U2(major)
	w.U2(uint16(len(pool.entries) + 1))
	for _, e := range pool.entries {
		w.U1(e.tag)
		switch e.tag {
		case tagUtf8:
			if err := w.UTF(e.str); err != nil {
				return nil, err
			}
		case tagClass:
			w.U2(e.ref)
		}
	}
	w.U2(cf.Access)
	w.U2(thisIdx)
	w.U2(superIdx)
	if err := writeCount(w, len(ifaceIdx), "interfaces"); err != nil {
		return nil, err
	}
	for _, idx := range ifaceIdx {
		w.U2(idx)
	}
	for _, members := range [][]Member{cf.Fields, cf.Methods} {
		if err := writeCount(w, len(members), "members"); err != nil {
			return nil, err
		}
		for _, m := range members {
			w.U2(m.Access)
			w.U2(pool.utf(m.Name))
			w.U2(pool.utf(m.Descriptor))
			if err := writeAttributes(w, pool, m.Attributes); err != nil {
				return nil, err
			}
		}
	}
	if err := writeAttributes(w, pool, cf.Attributes); err != nil {
		return nil, err
	}
	return w.Finish()
}

func writeCount(w *Writer, n int, what string) error {
	if n > 0xFFFF {
		return errs.ByteEmission("too many %s: %d", what, n)
	}
	w.U2(uint16(n))
	return nil
}

func writeAttributes(w *Writer, pool *constantPool, attrs []Attribute) error {
	if err := writeCount(w, len(attrs), "attributes"); err != nil {
		return err
	}
	for _, a := range attrs {
		w.U2(pool.utf(a.Name))
		length := w.Reserve4()
		if _, err := w.Write(a.Data); err != nil {
			return err
		}
		if err := w.PatchLength(length); err != nil {
			return err
		}
	}
	return nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("truncated class file at offset %d (need %d bytes)", r.pos, n)
	}
	return nil
}

func (r *reader) u1() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u2() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// Parse decodes a class file, accepting every constant pool tag defined by
// the JVM class file format, so classes built by other compilers can be
// introspected.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("bad class file magic 0x%08X", magic)
	}
	cf := &ClassFile{}
	if cf.Minor, err = r.u2(); err != nil {
		return nil, err
	}
	if cf.Major, err = r.u2(); err != nil {
		return nil, err
	}
	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	utf := func(idx uint16) (string, error) {
		if int(idx) <= 0 || int(idx) >= len(pool) || pool[idx].tag != tagUtf8 {
			return "", fmt.Errorf("constant pool index %d is not a Utf8 entry", idx)
		}
		return pool[idx].str, nil
	}
	class := func(idx uint16) (string, error) {
		if int(idx) <= 0 || int(idx) >= len(pool) || pool[idx].tag != tagClass {
			return "", fmt.Errorf("constant pool index %d is not a Class entry", idx)
		}
		name, err := utf(pool[idx].ref)
		return BinaryName(name), err
	}

	if cf.Access, err = r.u2(); err != nil {
		return nil, err
	}
	thisIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	if cf.Name, err = class(thisIdx); err != nil {
		return nil, err
	}
	superIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	if superIdx != 0 {
		if cf.Super, err = class(superIdx); err != nil {
			return nil, err
		}
	}
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, err := class(idx)
		if err != nil {
			return nil, err
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}
	readMembers := func() ([]Member, error) {
		n, err := r.u2()
		if err != nil {
			return nil, err
		}
		members := make([]Member, 0, n)
		for i := 0; i < int(n); i++ {
			var m Member
			if m.Access, err = r.u2(); err != nil {
				return nil, err
			}
			nameIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			if m.Name, err = utf(nameIdx); err != nil {
				return nil, err
			}
			descIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			if m.Descriptor, err = utf(descIdx); err != nil {
				return nil, err
			}
			if m.Attributes, err = readAttributes(r, utf); err != nil {
				return nil, err
			}
			members = append(members, m)
		}
		return members, nil
	}
	if cf.Fields, err = readMembers(); err != nil {
		return nil, err
	}
	if cf.Methods, err = readMembers(); err != nil {
		return nil, err
	}
	if cf.Attributes, err = readAttributes(r, utf); err != nil {
		return nil, err
	}
	if r.pos != len(r.data) {
		return nil, fmt.Errorf("%d trailing bytes after class %s", len(r.data)-r.pos, cf.Name)
	}
	return cf, nil
}

func readPool(r *reader) ([]poolEntry, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("constant pool count must be >= 1")
	}
	pool := make([]poolEntry, count)
	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		e := poolEntry{tag: tag}
		switch tag {
		case tagUtf8:
			n, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(n))
			if err != nil {
				return nil, err
			}
			e.str = string(b)
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			if e.ref, err = r.u2(); err != nil {
				return nil, err
			}
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			if _, err := r.bytes(4); err != nil {
				return nil, err
			}
		case tagLong, tagDouble:
			if _, err := r.bytes(8); err != nil {
				return nil, err
			}
			pool[i] = e
			i++ // eight-byte constants occupy two slots
			continue
		case tagMethodHandle:
			if _, err := r.bytes(3); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		pool[i] = e
	}
	return pool, nil
}

func readAttributes(r *reader, utf func(uint16) (string, error)) ([]Attribute, error) {
	n, err := r.u2()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	attrs := make([]Attribute, 0, n)
	for i := 0; i < int(n); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, err := utf(nameIdx)
		if err != nil {
			return nil, err
		}
		length, err := r.u4()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes(int(length))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{Name: name, Data: data})
	}
	return attrs, nil
}
