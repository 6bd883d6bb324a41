package listctl

// KeyEvent is a normalized keyboard event from the UI shell.
type KeyEvent struct {
	Key  string // lowercase key name, "escape" for the Escape key
	Ctrl bool
	Alt  bool
}

// Keymap dispatches the list-page keyboard affordances: a new-record combo,
// an optional import-dialog combo, and Escape to close the open modal. The
// combos never fire while a modal is open.
type Keymap struct {
	modalOpen  func() bool
	newRecord  func()
	openImport func() // nil when the page has no bulk import
	closeModal func()
}

// NewKeymap wires the keyboard bindings for one list page. openImport may be
// nil.
func NewKeymap(modalOpen func() bool, newRecord, openImport, closeModal func()) *Keymap {
	return &Keymap{
		modalOpen:  modalOpen,
		newRecord:  newRecord,
		openImport: openImport,
		closeModal: closeModal,
	}
}

// Handle processes one key event and reports whether it was consumed.
func (k *Keymap) Handle(ev KeyEvent) bool {
	if ev.Key == "escape" {
		if k.modalOpen() {
			k.closeModal()
			return true
		}
		return false
	}
	if k.modalOpen() {
		return false
	}
	if !ev.Ctrl || !ev.Alt {
		return false
	}
	switch ev.Key {
	case "n":
		k.newRecord()
		return true
	case "i":
		if k.openImport != nil {
			k.openImport()
			return true
		}
	}
	return false
}
