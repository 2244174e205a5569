package bytecode

import (
	"reflect"
	"testing"
)

func sampleClass(t *testing.T) *ClassFile {
	t.Helper()
	tramp, err := NewTrampoline("handle-1")
	if err != nil {
		t.Fatal(err)
	}
	return &ClassFile{
		Access:     AccPublic | AccSuper,
		Name:       "demo.Greeter",
		Super:      "java.lang.Object",
		Interfaces: []string{"java.lang.Runnable"},
		Fields: []Member{
			{Access: AccPrivate, Name: "count", Descriptor: "I"},
		},
		Methods: []Member{
			{Access: AccPublic, Name: "run", Descriptor: "()V", Attributes: []Attribute{tramp}},
			{Access: AccPublic | AccVarargs, Name: "greet", Descriptor: "(Ljava/lang/String;[I)Ljava/lang/String;"},
		},
	}
}

func TestEncodeParse_RoundTrip(t *testing.T) {
	cf := sampleClass(t)
	data, err := Encode(cf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Major != MajorVersion {
		t.Errorf("expected default major version %d, got %d", MajorVersion, got.Major)
	}
	if got.Name != cf.Name || got.Super != cf.Super {
		t.Errorf("unexpected names %s extends %s", got.Name, got.Super)
	}
	if !reflect.DeepEqual(got.Interfaces, cf.Interfaces) {
		t.Errorf("unexpected interfaces %v", got.Interfaces)
	}
	if !reflect.DeepEqual(got.Fields, cf.Fields) || !reflect.DeepEqual(got.Methods, cf.Methods) {
		t.Errorf("members did not survive round trip:\n%#v\n%#v", got.Methods, cf.Methods)
	}

	handle, ok := got.Methods[0].Trampoline()
	if !ok || handle != "handle-1" {
		t.Fatalf("expected trampoline handle-1, got %q (%v)", handle, ok)
	}
	if _, ok := got.Methods[1].Trampoline(); ok {
		t.Fatal("greet has no trampoline")
	}
}

func TestParse_Rejects(t *testing.T) {
	data, err := Encode(sampleClass(t))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("BadMagic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] = 0
		if _, err := Parse(bad); err == nil {
			t.Fatal("expected bad magic error")
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		for _, n := range []int{3, 10, len(data) / 2, len(data) - 1} {
			if _, err := Parse(data[:n]); err == nil {
				t.Fatalf("expected truncation error at %d bytes", n)
			}
		}
	})

	t.Run("Trailing", func(t *testing.T) {
		if _, err := Parse(append(append([]byte(nil), data...), 0)); err == nil {
			t.Fatal("expected trailing data error")
		}
	})
}

func TestParse_ForeignConstantPool(t *testing.T) {
	// Hand-built pool with Long (two slots), String, NameAndType and Methodref entries.
	w := NewWriter(0)
	w.U4(Magic)
	w.U2(0)
	w.U2(61)
	w.U2(10) // entries 1..9
	w.U1(tagUtf8)
	w.UTF("p/Foreign") // 1
	w.U1(tagClass)
	w.U2(1) // 2
	w.U1(tagLong)
	w.U8(42) // 3,4
	w.U1(tagString)
	w.U2(1) // 5
	w.U1(tagUtf8)
	w.UTF("()V") // 6
	w.U1(tagNameAndType)
	w.U2(1)
	w.U2(6) // 7
	w.U1(tagMethodref)
	w.U2(2)
	w.U2(7) // 8
	w.U1(tagMethodHandle)
	w.U1(5)
	w.U2(8)         // 9
	w.U2(AccPublic) // access
	w.U2(2)         // this
	w.U2(0)         // super
	w.U2(0)         // interfaces
	w.U2(0)         // fields
	w.U2(0)         // methods
	w.U2(0)         // attributes
	data, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}

	cf, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cf.Name != "p.Foreign" || cf.Super != "" {
		t.Fatalf("unexpected class %s extends %q", cf.Name, cf.Super)
	}
}

func TestDescriptors(t *testing.T) {
	desc := MethodDescriptor([]string{"int", "java.lang.String", "long[][]"}, "")
	if desc != "(ILjava/lang/String;[[J)V" {
		t.Fatalf("unexpected descriptor %s", desc)
	}
	params, ret, err := ParseMethodDescriptor(desc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(params, []string{"int", "java.lang.String", "long[][]"}) || ret != "void" {
		t.Fatalf("unexpected decode %v %s", params, ret)
	}

	for _, bad := range []string{"I)V", "(I", "(Q)V", "(Ljava/lang/String)V", "()VV"} {
		if _, _, err := ParseMethodDescriptor(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}

	if got, err := ParseFieldDescriptor("[Ljava/lang/Object;"); err != nil || got != "java.lang.Object[]" {
		t.Fatalf("unexpected field descriptor decode %q %v", got, err)
	}
}
