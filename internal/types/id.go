// README: Identifier value object shared across modules.
package types

import "github.com/google/uuid"

// ID is an opaque, UUID-formatted identifier.
type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID normalises s into canonical UUID form.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return ID(u.String()), nil
}

func (id ID) Valid() bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(string(id))
	return err == nil
}

func (id ID) String() string {
	return string(id)
}

// Contains reports whether id appears in ids.
func Contains(ids []ID, id ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
