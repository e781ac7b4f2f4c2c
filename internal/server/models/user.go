package models

import "time"

type User struct {
	ID            string
	UserName      string
	KeySalt       []byte
	Verifier      []byte
	KDFIterations int
	CreatedAt     time.Time
}
