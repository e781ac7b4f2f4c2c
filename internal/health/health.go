// Package health scores the password hygiene of a decrypted vault. The
// output is advisory UI data only; nothing in here ever gates a mutation.
package health

import (
	"sort"
	"strings"
	"time"

	"github.com/ivlasov/passvault/internal/vault"
)

// Strength buckets produced by Score.
type Strength int

const (
	StrengthWeak Strength = iota
	StrengthFair
	StrengthGood
	StrengthStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "weak"
	case StrengthFair:
		return "fair"
	case StrengthGood:
		return "good"
	default:
		return "strong"
	}
}

// OldPasswordAge is the update age beyond which a password counts as old.
const OldPasswordAge = 90 * 24 * time.Hour

// commonPasswords is a small denylist; membership forces weak regardless of
// any other scoring.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"12345678":    {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"abc123":      {},
	"letmein":     {},
	"welcome":     {},
	"admin":       {},
	"iloveyou":    {},
	"monkey":      {},
	"dragon":      {},
}

// Report is the analysis over the non-deleted password items of a vault.
type Report struct {
	TotalPasswords int

	WeakCount   int
	WeakItemIDs []string

	// ReusedGroups lists, per shared password value, the IDs of the items
	// sharing it (each group has at least two members). ReusedCount is the
	// total number of affected items.
	ReusedCount  int
	ReusedGroups [][]string

	OldCount   int
	OldItemIDs []string

	NoTOTPCount   int
	NoTOTPItemIDs []string

	// Score is 0..100: 100 minus weighted penalties for weak (40), reused
	// (30), old (20) and missing-2FA (10) items, each scaled by the
	// fraction of passwords affected.
	Score int
}

// Analyze runs the full report at the given point in time.
func Analyze(items []vault.Item, now time.Time) Report {
	var r Report
	oldCutoff := now.Add(-OldPasswordAge).UnixMilli()

	byPassword := map[string][]string{}

	for idx := range items {
		item := &items[idx]
		if item.Deleted() {
			continue
		}
		data, ok := item.Data.(*vault.PasswordData)
		if !ok {
			continue
		}
		r.TotalPasswords++

		if Score(data.Password) <= StrengthFair {
			r.WeakCount++
			r.WeakItemIDs = append(r.WeakItemIDs, item.ID)
		}
		if item.UpdatedAt < oldCutoff {
			r.OldCount++
			r.OldItemIDs = append(r.OldItemIDs, item.ID)
		}
		if data.TOTP == nil {
			r.NoTOTPCount++
			r.NoTOTPItemIDs = append(r.NoTOTPItemIDs, item.ID)
		}
		byPassword[data.Password] = append(byPassword[data.Password], item.ID)
	}

	for _, ids := range byPassword {
		if len(ids) > 1 {
			r.ReusedCount += len(ids)
			r.ReusedGroups = append(r.ReusedGroups, ids)
		}
	}
	sort.Slice(r.ReusedGroups, func(a, b int) bool {
		return len(r.ReusedGroups[a]) > len(r.ReusedGroups[b])
	})

	r.Score = overallScore(r)
	return r
}

func overallScore(r Report) int {
	if r.TotalPasswords == 0 {
		return 100
	}
	total := float64(r.TotalPasswords)
	penalty := 40*float64(r.WeakCount)/total +
		30*float64(r.ReusedCount)/total +
		20*float64(r.OldCount)/total +
		10*float64(r.NoTOTPCount)/total

	score := 100 - int(penalty+0.5)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Score rates one password value.
//
// Rules: under 8 characters is always weak; membership in the common
// denylist is always weak; otherwise points accumulate for length tiers and
// character classes, minus one for an obvious 3-run (ascending, keyboard
// row, or repeated character).
func Score(password string) Strength {
	if len(password) < 8 {
		return StrengthWeak
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		return StrengthWeak
	}

	points := 0
	switch {
	case len(password) >= 16:
		points += 2
	case len(password) >= 12:
		points++
	}

	var lower, upper, digit, other bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	for _, present := range []bool{lower, upper, digit, other} {
		if present {
			points++
		}
	}

	if hasObviousRun(password) {
		points--
	}

	switch {
	case points <= 2:
		return StrengthWeak
	case points <= 4:
		return StrengthFair
	case points == 5:
		return StrengthGood
	default:
		return StrengthStrong
	}
}

// keyboardRows for adjacency runs, checked lowercase.
var keyboardRows = []string{"qwertyuiop", "asdfghjkl", "zxcvbnm"}

// hasObviousRun reports a 3-character ascending run ("abc", "123"), a
// 3-character keyboard-adjacent run ("qwe"), or any character repeated
// three times in a row ("aaa").
func hasObviousRun(password string) bool {
	s := strings.ToLower(password)
	for i := 0; i+2 < len(s); i++ {
		a, b, c := s[i], s[i+1], s[i+2]
		if a == b && b == c {
			return true
		}
		if b == a+1 && c == b+1 {
			return true
		}
	}
	for _, row := range keyboardRows {
		for i := 0; i+3 <= len(row); i++ {
			if strings.Contains(s, row[i:i+3]) {
				return true
			}
		}
	}
	return false
}
