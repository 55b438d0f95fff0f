package store

import "fmt"

// Paths names the four CSV files backing the bot.
type Paths struct {
	Users    string
	Tomorrow string
	TwoHours string
	Reviews  string
}

// Tables bundles the registration table and the three inbox tables scanned by
// the coordinator. Inbox tables are (re)populated by an external batch job;
// this process never deletes their rows.
type Tables struct {
	Users    *Table
	Tomorrow *Table
	TwoHours *Table
	Reviews  *Table
}

// OpenTables opens all four tables. The registration table is created with its
// header when missing; the inbox tables must already exist.
func OpenTables(p Paths) (*Tables, error) {
	users, err := Create(p.Users, []string{ColRegPhone, ColTelegramID, ColWhatsAppID})
	if err != nil {
		return nil, fmt.Errorf("users table: %w", err)
	}
	tomorrow, err := Open(p.Tomorrow)
	if err != nil {
		return nil, fmt.Errorf("tomorrow table: %w", err)
	}
	twoHours, err := Open(p.TwoHours)
	if err != nil {
		return nil, fmt.Errorf("2hours table: %w", err)
	}
	reviews, err := Open(p.Reviews)
	if err != nil {
		return nil, fmt.Errorf("reviews table: %w", err)
	}
	return &Tables{
		Users:    users,
		Tomorrow: tomorrow,
		TwoHours: twoHours,
		Reviews:  reviews,
	}, nil
}
