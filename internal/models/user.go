package models

import "time"

// UserRole określa rolę użytkownika w systemie
type UserRole string

const (
	RoleStudent UserRole = "student" // Student - może prosić o wypożyczenie
	RoleStaff   UserRole = "staff"   // Personel - zatwierdza i odrzuca prośby
)

// User reprezentuje zalogowany podmiot
type User struct {
	ID          string    `json:"id" firestore:"id"`
	FirebaseUID string    `json:"firebase_uid,omitempty" firestore:"firebase_uid"` // UID z Firebase Auth
	Email       string    `json:"email" firestore:"email"`
	Username    string    `json:"username" firestore:"username"`
	Role        UserRole  `json:"role" firestore:"role"`
	IsActive    bool      `json:"is_active" firestore:"is_active"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
}

// IsStaff sprawdza czy użytkownik należy do personelu
func (u *User) IsStaff() bool {
	return u != nil && u.IsActive && u.Role == RoleStaff
}

// CanRequest sprawdza czy użytkownik może składać prośby o wypożyczenie
func (u *User) CanRequest() bool {
	return u != nil && u.IsActive
}

// DisplayName zwraca nazwę do wyświetlenia
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
