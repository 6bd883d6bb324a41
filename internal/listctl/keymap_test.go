package listctl_test

import (
	"testing"

	"coehub/internal/listctl"
)

type modalState struct {
	open    bool
	news    int
	imports int
	closes  int
}

func (m *modalState) keymap(withImport bool) *listctl.Keymap {
	var openImport func()
	if withImport {
		openImport = func() { m.imports++ }
	}
	return listctl.NewKeymap(
		func() bool { return m.open },
		func() { m.news++; m.open = true },
		openImport,
		func() { m.closes++; m.open = false },
	)
}

func TestNewRecordComboOpensCreateForm(t *testing.T) {
	m := &modalState{}
	km := m.keymap(true)

	if !km.Handle(listctl.KeyEvent{Key: "n", Ctrl: true, Alt: true}) {
		t.Fatal("combo should be consumed")
	}
	if m.news != 1 {
		t.Fatalf("new record fired %d times", m.news)
	}
}

func TestCombosDoNotFireWhileModalOpen(t *testing.T) {
	m := &modalState{open: true}
	km := m.keymap(true)

	if km.Handle(listctl.KeyEvent{Key: "n", Ctrl: true, Alt: true}) {
		t.Fatal("new-record combo must not fire while a modal is open")
	}
	if km.Handle(listctl.KeyEvent{Key: "i", Ctrl: true, Alt: true}) {
		t.Fatal("import combo must not fire while a modal is open")
	}
	if m.news != 0 || m.imports != 0 {
		t.Fatalf("handlers fired: %+v", m)
	}
}

func TestEscapeClosesOpenModalOnly(t *testing.T) {
	m := &modalState{}
	km := m.keymap(true)

	if km.Handle(listctl.KeyEvent{Key: "escape"}) {
		t.Fatal("escape with no modal open should not be consumed")
	}
	m.open = true
	if !km.Handle(listctl.KeyEvent{Key: "escape"}) {
		t.Fatal("escape should close the open modal")
	}
	if m.closes != 1 || m.open {
		t.Fatalf("modal not closed: %+v", m)
	}
}

func TestImportComboRequiresImportSupport(t *testing.T) {
	m := &modalState{}
	km := m.keymap(false)

	if km.Handle(listctl.KeyEvent{Key: "i", Ctrl: true, Alt: true}) {
		t.Fatal("pages without bulk import must ignore the import combo")
	}
	if km.Handle(listctl.KeyEvent{Key: "n"}) {
		t.Fatal("bare key without modifiers must be ignored")
	}
}
