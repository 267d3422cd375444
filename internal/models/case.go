package models

// Case is one logical unit of a batch: a canonical numeric ID and the
// files that belong to it in each input directory, keyed by role.
type Case struct {
	ID    string
	Paths map[string]string
}

// Path returns the file recorded for role, or "" if there is none
func (c Case) Path(role string) string {
	return c.Paths[role]
}
