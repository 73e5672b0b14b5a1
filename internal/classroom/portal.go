package classroom

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

// PortalRole distinguishes the two limited portals reachable by access code.
type PortalRole string

const (
	// PortalRoleParent grants the parent view of a single student.
	PortalRoleParent PortalRole = "parent"
	// PortalRoleStudent grants the student view of a single student.
	PortalRoleStudent PortalRole = "student"
)

// ErrAccessCodeNotFound indicates that no student of the owner carries the code.
var ErrAccessCodeNotFound = errors.New("classroom: access code not found")

// PortalIdentity is the resolution of one access code.
type PortalIdentity struct {
	ClassID   FlexID
	StudentID string
	Role      PortalRole
}

const (
	accessCodeLength = 6
	// No 0/O/1/I/L so codes survive being read aloud or written on paper.
	accessCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// NewAccessCode mints one short login code.
func NewAccessCode() (string, error) {
	buffer := make([]byte, accessCodeLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("classroom: generate access code: %w", err)
	}
	code := make([]byte, accessCodeLength)
	for i, b := range buffer {
		code[i] = accessCodeAlphabet[int(b)%len(accessCodeAlphabet)]
	}
	return string(code), nil
}

// EnsureAccessCodes fills in a code pair for every student that does not have
// one yet. Existing pairs are left untouched so codes already handed out to
// families keep working. Returns true when any pair was added.
func EnsureAccessCodes(class *Class) (bool, error) {
	if class.AccessCodes == nil {
		class.AccessCodes = map[string]AccessCodePair{}
	}
	added := false
	for _, student := range class.Students {
		key := student.ID.String()
		if key == "" {
			continue
		}
		pair := class.AccessCodes[key]
		if pair.Parent == "" {
			code, err := NewAccessCode()
			if err != nil {
				return added, err
			}
			pair.Parent = code
		}
		if pair.Student == "" {
			code, err := NewAccessCode()
			if err != nil {
				return added, err
			}
			pair.Student = code
		}
		if pair != class.AccessCodes[key] {
			class.AccessCodes[key] = pair
			added = true
		}
	}
	return added, nil
}

// ResolveAccessCode scans the owner's classes for a student whose parent or
// student code matches. Codes are compared case-insensitively because they
// are typed by hand.
func (r *Reconciler) ResolveAccessCode(ctx context.Context, owner, code string) (PortalIdentity, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return PortalIdentity{}, ErrAccessCodeNotFound
	}

	classes, err := r.LoadClasses(ctx, owner)
	if err != nil {
		return PortalIdentity{}, err
	}

	for _, class := range classes {
		for studentID, pair := range class.AccessCodes {
			if strings.EqualFold(pair.Parent, normalized) {
				return PortalIdentity{ClassID: class.ID, StudentID: studentID, Role: PortalRoleParent}, nil
			}
			if strings.EqualFold(pair.Student, normalized) {
				return PortalIdentity{ClassID: class.ID, StudentID: studentID, Role: PortalRoleStudent}, nil
			}
		}
	}
	return PortalIdentity{}, ErrAccessCodeNotFound
}
