package message

import "slices"

// Record is the shallow form of a message as kept in the store:
// justification entries are hashes of previously stored records.
type Record struct {
	Sender        string `json:"sender"`
	Estimate      int64  `json:"estimate"`
	Justification []Hash `json:"justification"`
}

// Clone returns a copy of r that shares no memory with it.
func (r Record) Clone() Record {
	r.Justification = slices.Clone(r.Justification)
	return r
}

// Hash returns the content hash of r.
func (r Record) Hash() Hash {
	return hashRecord(Encode(r))
}

// IsLeaf reports whether r has an empty justification.
func (r Record) IsLeaf() bool {
	return len(r.Justification) == 0
}

// Message is the fully expanded form: every justification entry is itself
// a complete message, down to leaves.
type Message struct {
	Sender        string    `json:"sender"`
	Estimate      int64     `json:"estimate"`
	Justification []Message `json:"justification"`
}

// Leaf builds a message with an empty justification.
func Leaf(sender string, estimate int64) Message {
	return Message{Sender: sender, Estimate: estimate}
}

// Equal reports whether m and o are structurally identical.
func (m Message) Equal(o Message) bool {
	if m.Sender != o.Sender || m.Estimate != o.Estimate {
		return false
	}

	if len(m.Justification) != len(o.Justification) {
		return false
	}

	for i := range m.Justification {
		if !m.Justification[i].Equal(o.Justification[i]) {
			return false
		}
	}

	return true
}
