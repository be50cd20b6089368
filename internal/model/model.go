package model

import "time"

// All times are Unix milliseconds. Record ids are assigned by the store in
// append order, so id order and creation order agree.

func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// User carries the digest of the verification challenge that created it; the
// challenge counts as consumed as long as such a user exists.
type User struct {
	ID              int64  `json:"userId"`
	CreationTime    int64  `json:"creationTime"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	ChallengeDigest string `json:"-"`
}

type ApiKeyKind string

const (
	ApiKeyValid  ApiKeyKind = "VALID"
	ApiKeyCancel ApiKeyKind = "CANCEL"
)

// ApiKey records share a logical key through SecretDigest. The plaintext
// secret is returned once at issuance and never stored.
type ApiKey struct {
	ID            int64      `json:"apiKeyId"`
	CreationTime  int64      `json:"creationTime"`
	CreatorUserID int64      `json:"creatorUserId"`
	SecretDigest  string     `json:"-"`
	Kind          ApiKeyKind `json:"apiKeyKind"`
	// Duration in milliseconds; 0 means the key never expires.
	Duration int64 `json:"duration"`
}

type PasswordKind string

const (
	PasswordChange PasswordKind = "CHANGE"
	PasswordCancel PasswordKind = "CANCEL"
	PasswordReset  PasswordKind = "RESET"
)

type Password struct {
	ID            int64        `json:"passwordId"`
	CreationTime  int64        `json:"creationTime"`
	CreatorUserID int64        `json:"creatorUserId"`
	UserID        int64        `json:"userId"`
	Kind          PasswordKind `json:"passwordKind"`
	PasswordHash  string       `json:"-"`
	// ResetDigest links a RESET record to the password reset it consumed.
	ResetDigest string `json:"-"`
}

type VerificationChallenge struct {
	ID           int64  `json:"-"`
	CreationTime int64  `json:"creationTime"`
	SecretDigest string `json:"-"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

type PasswordResetRecord struct {
	ID           int64  `json:"-"`
	CreationTime int64  `json:"creationTime"`
	SecretDigest string `json:"-"`
	UserID       int64  `json:"userId"`
}

type School struct {
	ID            int64  `json:"schoolId"`
	CreationTime  int64  `json:"creationTime"`
	CreatorUserID int64  `json:"creatorUserId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
}

type AdminshipKind string

const (
	AdminshipAdmin  AdminshipKind = "ADMIN"
	AdminshipCancel AdminshipKind = "CANCEL"
)

// Adminship records share a logical key through (UserID, SchoolID); the most
// recent record for the pair decides the user's effective school role.
type Adminship struct {
	ID            int64         `json:"adminshipId"`
	CreationTime  int64         `json:"creationTime"`
	CreatorUserID int64         `json:"creatorUserId"`
	UserID        int64         `json:"userId"`
	SchoolID      int64         `json:"schoolId"`
	Kind          AdminshipKind `json:"adminshipKind"`
	// SchoolKeyID is 0 unless the adminship was granted by redeeming a key.
	SchoolKeyID int64 `json:"schoolKeyId,omitempty"`
}

type SchoolKeyKind string

const (
	SchoolKeyValid  SchoolKeyKind = "VALID"
	SchoolKeyCancel SchoolKeyKind = "CANCEL"
)

// SchoolKey is a redeemable invitation that grants the redeemer an ADMIN
// adminship at its school.
type SchoolKey struct {
	ID            int64         `json:"schoolKeyId"`
	CreationTime  int64         `json:"creationTime"`
	CreatorUserID int64         `json:"creatorUserId"`
	SchoolID      int64         `json:"schoolId"`
	SecretDigest  string        `json:"-"`
	Kind          SchoolKeyKind `json:"schoolKeyKind"`
	MaxUses       int64         `json:"maxUses"`
	// Duration in milliseconds; 0 means the key never expires.
	Duration int64 `json:"duration"`
}

type Location struct {
	ID            int64  `json:"locationId"`
	CreationTime  int64  `json:"creationTime"`
	CreatorUserID int64  `json:"creatorUserId"`
	SchoolID      int64  `json:"schoolId"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	Phone         string `json:"phone"`
}

type Course struct {
	ID            int64  `json:"courseId"`
	CreationTime  int64  `json:"creationTime"`
	CreatorUserID int64  `json:"creatorUserId"`
	SchoolID      int64  `json:"schoolId"`
	LocationID    int64  `json:"locationId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
}

type CourseKeyKind string

const (
	CourseKeyValid  CourseKeyKind = "VALID"
	CourseKeyCancel CourseKeyKind = "CANCEL"
)

type CourseKey struct {
	ID            int64         `json:"courseKeyId"`
	CreationTime  int64         `json:"creationTime"`
	CreatorUserID int64         `json:"creatorUserId"`
	CourseID      int64         `json:"courseId"`
	SecretDigest  string        `json:"-"`
	Kind          CourseKeyKind `json:"courseKeyKind"`
	// MembershipKind is the membership a redeeming user receives.
	MembershipKind CourseMembershipKind `json:"courseMembershipKind"`
	MaxUses        int64                `json:"maxUses"`
	// Duration in milliseconds; 0 means the key never expires.
	Duration int64 `json:"duration"`
}

type CourseMembershipKind string

const (
	MembershipStudent    CourseMembershipKind = "STUDENT"
	MembershipInstructor CourseMembershipKind = "INSTRUCTOR"
	MembershipCancel     CourseMembershipKind = "CANCEL"
)

type CourseMembershipSource string

const (
	MembershipSourceSet CourseMembershipSource = "SET"
	MembershipSourceKey CourseMembershipSource = "KEY"
)

// CourseMembership records share a logical key through (UserID, CourseID).
type CourseMembership struct {
	ID            int64                  `json:"courseMembershipId"`
	CreationTime  int64                  `json:"creationTime"`
	CreatorUserID int64                  `json:"creatorUserId"`
	UserID        int64                  `json:"userId"`
	CourseID      int64                  `json:"courseId"`
	Kind          CourseMembershipKind   `json:"courseMembershipKind"`
	Source        CourseMembershipSource `json:"courseMembershipSourceKind"`
	// CourseKeyID is 0 unless Source is KEY.
	CourseKeyID int64 `json:"courseKeyId,omitempty"`
}

type Session struct {
	ID            int64  `json:"sessionId"`
	CreationTime  int64  `json:"creationTime"`
	CreatorUserID int64  `json:"creatorUserId"`
	CourseID      int64  `json:"courseId"`
	LocationID    int64  `json:"locationId,omitempty"`
	Name          string `json:"name"`
	StartTime     int64  `json:"startTime"`
	Duration      int64  `json:"duration"`
	Hidden        bool   `json:"hidden"`
}

type SessionRequest struct {
	ID             int64  `json:"sessionRequestId"`
	CreationTime   int64  `json:"creationTime"`
	AttendeeUserID int64  `json:"attendeeUserId"`
	CourseID       int64  `json:"courseId"`
	StartTime      int64  `json:"startTime"`
	Duration       int64  `json:"duration"`
	Message        string `json:"message"`
}

// SessionRequestResponse terminates a session request; at most one exists per
// request. CommittmentID is set only when Accepted.
type SessionRequestResponse struct {
	SessionRequestID int64  `json:"sessionRequestId"`
	CreationTime     int64  `json:"creationTime"`
	CreatorUserID    int64  `json:"creatorUserId"`
	Message          string `json:"message"`
	Accepted         bool   `json:"accepted"`
	CommittmentID    int64  `json:"committmentId,omitempty"`
}

type Committment struct {
	ID             int64 `json:"committmentId"`
	CreationTime   int64 `json:"creationTime"`
	CreatorUserID  int64 `json:"creatorUserId"`
	AttendeeUserID int64 `json:"attendeeUserId"`
	SessionID      int64 `json:"sessionId"`
	Cancellable    bool  `json:"cancellable"`
}

type CommittmentResponseKind string

const (
	CommittmentAttended  CommittmentResponseKind = "ATTENDED"
	CommittmentAbsent    CommittmentResponseKind = "ABSENT"
	CommittmentCancelled CommittmentResponseKind = "CANCELLED"
)

// CommittmentResponse terminates a commitment; at most one exists per
// commitment.
type CommittmentResponse struct {
	CommittmentID int64                   `json:"committmentId"`
	CreationTime  int64                   `json:"creationTime"`
	CreatorUserID int64                   `json:"creatorUserId"`
	Kind          CommittmentResponseKind `json:"committmentResponseKind"`
}

func ValidApiKeyKind(k ApiKeyKind) bool {
	return k == ApiKeyValid || k == ApiKeyCancel
}

func ValidAdminshipKind(k AdminshipKind) bool {
	return k == AdminshipAdmin || k == AdminshipCancel
}

func ValidMembershipKind(k CourseMembershipKind) bool {
	return k == MembershipStudent || k == MembershipInstructor || k == MembershipCancel
}

func ValidCommittmentResponseKind(k CommittmentResponseKind) bool {
	return k == CommittmentAttended || k == CommittmentAbsent || k == CommittmentCancelled
}
