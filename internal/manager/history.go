package manager

// History is a per-session list of sent commands with a recall cursor.
// The cursor ranges over [0, len]; len means "past the newest entry".
// It is not safe for concurrent use; the registry guards it.
type History struct {
	entries []string
	cursor  int
}

func NewHistory() *History {
	return &History{}
}

// Append records cmd and resets the cursor past the newest entry.
func (h *History) Append(cmd string) {
	h.entries = append(h.entries, cmd)
	h.cursor = len(h.entries)
}

// Previous moves toward older entries, stopping at the oldest.
// It returns "" when the history is empty.
func (h *History) Previous() string {
	if len(h.entries) == 0 {
		return ""
	}
	if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor]
}

// Next moves toward newer entries. Stepping past the newest returns "".
func (h *History) Next() string {
	if h.cursor < len(h.entries) {
		h.cursor++
	}
	if h.cursor == len(h.entries) {
		return ""
	}
	return h.entries[h.cursor]
}

func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the recorded commands, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}
