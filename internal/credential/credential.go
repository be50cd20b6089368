// Package credential issues and validates the secret-bearing ledgers: api
// keys, passwords, verification challenges, password resets, and course keys.
// Secrets are returned to the caller exactly once; only sha256 digests are
// stored, and revocation is an appended CANCEL record, never an update.
package credential

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"hourglass/internal/crypto"
	"hourglass/internal/ledger"
	"hourglass/internal/mail"
	"hourglass/internal/model"
	"hourglass/internal/role"
)

var (
	challengeWindow   = (15 * time.Minute).Milliseconds()
	challengeCooldown = (5 * time.Minute).Milliseconds()
)

type Engine struct {
	store    ledger.Store
	mailer   mail.Mailer
	denylist mail.Denylist
	log      *zap.Logger
	now      func() int64
}

func NewEngine(store ledger.Store, mailer mail.Mailer, denylist mail.Denylist, log *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		mailer:   mailer,
		denylist: denylist,
		log:      log,
		now:      model.NowMillis,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewVerificationChallenge starts account creation. The mail publish runs in
// the same transaction as the append, so a failed publish leaves no record.
func (e *Engine) NewVerificationChallenge(ctx context.Context, name, email, password string) (model.VerificationChallenge, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return model.VerificationChallenge{}, model.ErrInvalidArgument
	}
	if !crypto.SecurePassword(password) {
		return model.VerificationChallenge{}, model.ErrInvalidArgument
	}
	blocked, err := e.denylist.Denylisted(ctx, email)
	if err != nil {
		return model.VerificationChallenge{}, err
	}
	if blocked {
		return model.VerificationChallenge{}, model.ErrDenylisted
	}

	secret, err := crypto.NewSecret()
	if err != nil {
		return model.VerificationChallenge{}, err
	}
	passwordHash, err := crypto.HashPassword(password)
	if err != nil {
		return model.VerificationChallenge{}, err
	}

	challenge := model.VerificationChallenge{
		CreationTime: e.now(),
		SecretDigest: crypto.HashSecret(secret),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	}
	err = e.store.InTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.UserByEmail(ctx, email); err == nil {
			return model.ErrConflict
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		last, err := tx.LatestVerificationChallengeByEmail(ctx, email)
		if err == nil && challenge.CreationTime-last.CreationTime < challengeCooldown {
			return model.ErrRateLimited
		} else if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
		if err := tx.AppendVerificationChallenge(ctx, &challenge); err != nil {
			return err
		}
		return e.mailer.Send(ctx, email, mail.VerificationSubject(),
			mail.VerificationBody(name, secret, 15))
	})
	if err != nil {
		return model.VerificationChallenge{}, err
	}
	e.log.Info("verification challenge issued", zap.String("email", email))
	return challenge, nil
}

// NewUser consumes a verification challenge. Consumption is the existence of
// the created user, not a mutation of the challenge record.
func (e *Engine) NewUser(ctx context.Context, challengeSecret string) (model.User, error) {
	digest := crypto.HashSecret(challengeSecret)
	var user model.User
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		challenge, err := tx.VerificationChallengeByDigest(ctx, digest)
		if err != nil {
			return err
		}
		now := e.now()
		if now >= challenge.CreationTime+challengeWindow {
			return model.ErrUnauthenticated
		}
		if _, err := tx.UserByChallengeDigest(ctx, digest); err == nil {
			return model.ErrConflict
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		if _, err := tx.UserByEmail(ctx, challenge.Email); err == nil {
			return model.ErrConflict
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		user = model.User{
			CreationTime:    now,
			Name:            challenge.Name,
			Email:           challenge.Email,
			ChallengeDigest: digest,
		}
		if err := tx.AppendUser(ctx, &user); err != nil {
			return err
		}
		password := model.Password{
			CreationTime:  now,
			CreatorUserID: user.ID,
			UserID:        user.ID,
			Kind:          model.PasswordChange,
			PasswordHash:  challenge.PasswordHash,
		}
		return tx.AppendPassword(ctx, &password)
	})
	if err != nil {
		return model.User{}, err
	}
	e.log.Info("user created", zap.Int64("user_id", user.ID))
	return user, nil
}

// NewApiKey authenticates with email and password and returns the key record
// plus the plaintext secret. duration is in milliseconds; 0 never expires.
func (e *Engine) NewApiKey(ctx context.Context, email, password string, duration int64) (model.ApiKey, string, error) {
	if duration < 0 {
		return model.ApiKey{}, "", model.ErrInvalidArgument
	}
	user, err := e.store.UserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ApiKey{}, "", model.ErrUnauthenticated
		}
		return model.ApiKey{}, "", err
	}
	current, err := e.store.CurrentPassword(ctx, user.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ApiKey{}, "", model.ErrUnauthenticated
		}
		return model.ApiKey{}, "", err
	}
	if current.Kind == model.PasswordCancel {
		return model.ApiKey{}, "", model.ErrUnauthenticated
	}
	if err := crypto.CheckPassword(current.PasswordHash, password); err != nil {
		return model.ApiKey{}, "", model.ErrUnauthenticated
	}

	secret, err := crypto.NewSecret()
	if err != nil {
		return model.ApiKey{}, "", err
	}
	key := model.ApiKey{
		CreationTime:  e.now(),
		CreatorUserID: user.ID,
		SecretDigest:  crypto.HashSecret(secret),
		Kind:          model.ApiKeyValid,
		Duration:      duration,
	}
	if err := e.store.AppendApiKey(ctx, &key); err != nil {
		return model.ApiKey{}, "", err
	}
	return key, secret, nil
}

// ValidateApiKey resolves a bearer secret to its key and user. A key whose
// lifetime has elapsed exactly is already invalid.
func (e *Engine) ValidateApiKey(ctx context.Context, secret string) (model.ApiKey, model.User, error) {
	key, err := ValidateApiKeyAt(ctx, e.store, secret, e.now())
	if err != nil {
		return model.ApiKey{}, model.User{}, err
	}
	user, err := e.store.UserByID(ctx, key.CreatorUserID)
	if err != nil {
		return model.ApiKey{}, model.User{}, err
	}
	return key, user, nil
}

func ValidateApiKeyAt(ctx context.Context, s ledger.Store, secret string, now int64) (model.ApiKey, error) {
	digest := crypto.HashSecret(secret)
	records, err := s.ApiKeys(ctx, ledger.ApiKeyFilter{
		SecretDigest: &digest,
		OnlyRecent:   true,
		Page:         ledger.Page{Count: ledger.NoLimit},
	})
	if err != nil {
		return model.ApiKey{}, err
	}
	if len(records) == 0 {
		return model.ApiKey{}, model.ErrUnauthenticated
	}
	key := records[0]
	if key.Kind != model.ApiKeyValid || !crypto.DigestsEqual(key.SecretDigest, digest) {
		return model.ApiKey{}, model.ErrUnauthenticated
	}
	if key.Duration != 0 && now >= key.CreationTime+key.Duration {
		return model.ApiKey{}, model.ErrUnauthenticated
	}
	return key, nil
}

// CancelApiKey appends a CANCEL record for the target secret. Only the key's
// creator may cancel it.
func (e *Engine) CancelApiKey(ctx context.Context, actorUserID int64, secretToCancel string) (model.ApiKey, error) {
	digest := crypto.HashSecret(secretToCancel)
	var cancel model.ApiKey
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		records, err := tx.ApiKeys(ctx, ledger.ApiKeyFilter{
			SecretDigest: &digest,
			OnlyRecent:   true,
			Page:         ledger.Page{Count: ledger.NoLimit},
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return model.ErrNotFound
		}
		target := records[0]
		if target.CreatorUserID != actorUserID {
			return model.ErrUnauthorized
		}
		if target.Kind == model.ApiKeyCancel {
			return model.ErrConflict
		}
		cancel = model.ApiKey{
			CreationTime:  e.now(),
			CreatorUserID: actorUserID,
			SecretDigest:  digest,
			Kind:          model.ApiKeyCancel,
		}
		return tx.AppendApiKey(ctx, &cancel)
	})
	if err != nil {
		return model.ApiKey{}, err
	}
	return cancel, nil
}

// NewPasswordReset mails a reset secret. Issuance for one address is limited
// to once per five minutes, derived from the ledger alone.
func (e *Engine) NewPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	blocked, err := e.denylist.Denylisted(ctx, email)
	if err != nil {
		return err
	}
	if blocked {
		return model.ErrDenylisted
	}
	secret, err := crypto.NewSecret()
	if err != nil {
		return err
	}
	return e.store.InTx(ctx, func(tx ledger.Store) error {
		user, err := tx.UserByEmail(ctx, email)
		if err != nil {
			return err
		}
		last, err := tx.LatestPasswordResetForUser(ctx, user.ID)
		now := e.now()
		if err == nil && now-last.CreationTime < challengeCooldown {
			return model.ErrRateLimited
		} else if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
		reset := model.PasswordResetRecord{
			CreationTime: now,
			SecretDigest: crypto.HashSecret(secret),
			UserID:       user.ID,
		}
		if err := tx.AppendPasswordReset(ctx, &reset); err != nil {
			return err
		}
		return e.mailer.Send(ctx, email, mail.PasswordResetSubject(),
			mail.PasswordResetBody(secret, 15))
	})
}

// ChangePassword appends a CHANGE record after verifying the old password.
func (e *Engine) ChangePassword(ctx context.Context, actorUserID, targetUserID int64, oldPassword, newPassword string) (model.Password, error) {
	if actorUserID != targetUserID {
		return model.Password{}, model.ErrUnauthorized
	}
	if !crypto.SecurePassword(newPassword) {
		return model.Password{}, model.ErrInvalidArgument
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return model.Password{}, err
	}
	record := model.Password{
		CreatorUserID: actorUserID,
		UserID:        targetUserID,
		Kind:          model.PasswordChange,
		PasswordHash:  hash,
	}
	err = e.store.InTx(ctx, func(tx ledger.Store) error {
		current, err := tx.CurrentPassword(ctx, targetUserID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.ErrUnauthenticated
			}
			return err
		}
		if current.Kind == model.PasswordCancel {
			return model.ErrUnauthenticated
		}
		if err := crypto.CheckPassword(current.PasswordHash, oldPassword); err != nil {
			return model.ErrUnauthenticated
		}
		record.CreationTime = e.now()
		return tx.AppendPassword(ctx, &record)
	})
	if err != nil {
		return model.Password{}, err
	}
	return record, nil
}

// CancelPassword locks the account out of password authentication.
func (e *Engine) CancelPassword(ctx context.Context, actorUserID, targetUserID int64) (model.Password, error) {
	if actorUserID != targetUserID {
		return model.Password{}, model.ErrUnauthorized
	}
	record := model.Password{
		CreationTime:  e.now(),
		CreatorUserID: actorUserID,
		UserID:        targetUserID,
		Kind:          model.PasswordCancel,
	}
	if err := e.store.AppendPassword(ctx, &record); err != nil {
		return model.Password{}, err
	}
	return record, nil
}

// ResetPassword consumes a password reset secret. Consumption is the
// existence of the RESET record carrying the same digest.
func (e *Engine) ResetPassword(ctx context.Context, resetSecret, newPassword string) (model.Password, error) {
	if !crypto.SecurePassword(newPassword) {
		return model.Password{}, model.ErrInvalidArgument
	}
	digest := crypto.HashSecret(resetSecret)
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return model.Password{}, err
	}
	var record model.Password
	err = e.store.InTx(ctx, func(tx ledger.Store) error {
		reset, err := tx.PasswordResetByDigest(ctx, digest)
		if err != nil {
			return err
		}
		now := e.now()
		if now >= reset.CreationTime+challengeWindow {
			return model.ErrUnauthenticated
		}
		if _, err := tx.PasswordByResetDigest(ctx, digest); err == nil {
			return model.ErrConflict
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		record = model.Password{
			CreationTime:  now,
			CreatorUserID: reset.UserID,
			UserID:        reset.UserID,
			Kind:          model.PasswordReset,
			PasswordHash:  hash,
			ResetDigest:   digest,
		}
		return tx.AppendPassword(ctx, &record)
	})
	if err != nil {
		return model.Password{}, err
	}
	return record, nil
}

// NewCourseKey mints a joinable secret for a course. Keys can also carry
// CANCEL, producing a leave-link.
func (e *Engine) NewCourseKey(ctx context.Context, actorUserID, courseID int64, membershipKind model.CourseMembershipKind, maxUses, duration int64) (model.CourseKey, string, error) {
	if !model.ValidMembershipKind(membershipKind) || maxUses < 1 || duration < 0 {
		return model.CourseKey{}, "", model.ErrInvalidArgument
	}
	if _, err := e.store.CourseByID(ctx, courseID); err != nil {
		return model.CourseKey{}, "", err
	}
	allowed, err := role.CanActAsInstructor(ctx, e.store, actorUserID, courseID)
	if err != nil {
		return model.CourseKey{}, "", err
	}
	if !allowed {
		return model.CourseKey{}, "", model.ErrUnauthorized
	}

	secret, err := crypto.NewSecret()
	if err != nil {
		return model.CourseKey{}, "", err
	}
	key := model.CourseKey{
		CreationTime:   e.now(),
		CreatorUserID:  actorUserID,
		CourseID:       courseID,
		SecretDigest:   crypto.HashSecret(secret),
		Kind:           model.CourseKeyValid,
		MembershipKind: membershipKind,
		MaxUses:        maxUses,
		Duration:       duration,
	}
	if err := e.store.AppendCourseKey(ctx, &key); err != nil {
		return model.CourseKey{}, "", err
	}
	return key, secret, nil
}

func (e *Engine) CancelCourseKey(ctx context.Context, actorUserID, courseKeyID int64) (model.CourseKey, error) {
	var cancel model.CourseKey
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		target, err := tx.CourseKeyByID(ctx, courseKeyID)
		if err != nil {
			return err
		}
		allowed, err := role.CanActAsInstructor(ctx, tx, actorUserID, target.CourseID)
		if err != nil {
			return err
		}
		if !allowed {
			return model.ErrUnauthorized
		}
		records, err := tx.CourseKeys(ctx, ledger.CourseKeyFilter{
			SecretDigest: &target.SecretDigest,
			OnlyRecent:   true,
			Page:         ledger.Page{Count: ledger.NoLimit},
		})
		if err != nil {
			return err
		}
		if len(records) > 0 && records[0].Kind == model.CourseKeyCancel {
			return model.ErrConflict
		}
		cancel = model.CourseKey{
			CreationTime:   e.now(),
			CreatorUserID:  actorUserID,
			CourseID:       target.CourseID,
			SecretDigest:   target.SecretDigest,
			Kind:           model.CourseKeyCancel,
			MembershipKind: target.MembershipKind,
			MaxUses:        target.MaxUses,
			Duration:       target.Duration,
		}
		return tx.AppendCourseKey(ctx, &cancel)
	})
	if err != nil {
		return model.CourseKey{}, err
	}
	return cancel, nil
}

// ValidateCourseKeyAt resolves a course key secret against the fold at a
// point in time. Exhaustion counts memberships sourced from the key's VALID
// record.
func ValidateCourseKeyAt(ctx context.Context, s ledger.Store, secret string, now int64) (model.CourseKey, error) {
	digest := crypto.HashSecret(secret)
	records, err := s.CourseKeys(ctx, ledger.CourseKeyFilter{
		SecretDigest: &digest,
		OnlyRecent:   true,
		Page:         ledger.Page{Count: ledger.NoLimit},
	})
	if err != nil {
		return model.CourseKey{}, err
	}
	if len(records) == 0 {
		return model.CourseKey{}, model.ErrNotFound
	}
	key := records[0]
	if key.Kind != model.CourseKeyValid {
		return model.CourseKey{}, model.ErrUnauthenticated
	}
	if key.Duration != 0 && now >= key.CreationTime+key.Duration {
		return model.CourseKey{}, model.ErrUnauthenticated
	}
	uses, err := s.CourseMemberships(ctx, ledger.CourseMembershipFilter{
		CourseKeyID: &key.ID,
		Page:        ledger.Page{Count: ledger.NoLimit},
	})
	if err != nil {
		return model.CourseKey{}, err
	}
	if int64(len(uses)) >= key.MaxUses {
		return model.CourseKey{}, model.ErrConflict
	}
	return key, nil
}

// NewSchoolKey mints an admin invitation secret for a school.
func (e *Engine) NewSchoolKey(ctx context.Context, actorUserID, schoolID, maxUses, duration int64) (model.SchoolKey, string, error) {
	if maxUses < 1 || duration < 0 {
		return model.SchoolKey{}, "", model.ErrInvalidArgument
	}
	if _, err := e.store.SchoolByID(ctx, schoolID); err != nil {
		return model.SchoolKey{}, "", err
	}
	admin, err := role.IsAdmin(ctx, e.store, actorUserID, schoolID)
	if err != nil {
		return model.SchoolKey{}, "", err
	}
	if !admin {
		return model.SchoolKey{}, "", model.ErrUnauthorized
	}

	secret, err := crypto.NewSecret()
	if err != nil {
		return model.SchoolKey{}, "", err
	}
	key := model.SchoolKey{
		CreationTime:  e.now(),
		CreatorUserID: actorUserID,
		SchoolID:      schoolID,
		SecretDigest:  crypto.HashSecret(secret),
		Kind:          model.SchoolKeyValid,
		MaxUses:       maxUses,
		Duration:      duration,
	}
	if err := e.store.AppendSchoolKey(ctx, &key); err != nil {
		return model.SchoolKey{}, "", err
	}
	return key, secret, nil
}

func (e *Engine) CancelSchoolKey(ctx context.Context, actorUserID, schoolKeyID int64) (model.SchoolKey, error) {
	var cancel model.SchoolKey
	err := e.store.InTx(ctx, func(tx ledger.Store) error {
		target, err := tx.SchoolKeyByID(ctx, schoolKeyID)
		if err != nil {
			return err
		}
		admin, err := role.IsAdmin(ctx, tx, actorUserID, target.SchoolID)
		if err != nil {
			return err
		}
		if !admin {
			return model.ErrUnauthorized
		}
		records, err := tx.SchoolKeys(ctx, ledger.SchoolKeyFilter{
			SecretDigest: &target.SecretDigest,
			OnlyRecent:   true,
			Page:         ledger.Page{Count: ledger.NoLimit},
		})
		if err != nil {
			return err
		}
		if len(records) > 0 && records[0].Kind == model.SchoolKeyCancel {
			return model.ErrConflict
		}
		cancel = model.SchoolKey{
			CreationTime:  e.now(),
			CreatorUserID: actorUserID,
			SchoolID:      target.SchoolID,
			SecretDigest:  target.SecretDigest,
			Kind:          model.SchoolKeyCancel,
			MaxUses:       target.MaxUses,
			Duration:      target.Duration,
		}
		return tx.AppendSchoolKey(ctx, &cancel)
	})
	if err != nil {
		return model.SchoolKey{}, err
	}
	return cancel, nil
}

// ValidateSchoolKeyAt resolves a school key secret against the fold at a
// point in time. Exhaustion counts adminships granted from the key's VALID
// record.
func ValidateSchoolKeyAt(ctx context.Context, s ledger.Store, secret string, now int64) (model.SchoolKey, error) {
	digest := crypto.HashSecret(secret)
	records, err := s.SchoolKeys(ctx, ledger.SchoolKeyFilter{
		SecretDigest: &digest,
		OnlyRecent:   true,
		Page:         ledger.Page{Count: ledger.NoLimit},
	})
	if err != nil {
		return model.SchoolKey{}, err
	}
	if len(records) == 0 {
		return model.SchoolKey{}, model.ErrNotFound
	}
	key := records[0]
	if key.Kind != model.SchoolKeyValid {
		return model.SchoolKey{}, model.ErrUnauthenticated
	}
	if key.Duration != 0 && now >= key.CreationTime+key.Duration {
		return model.SchoolKey{}, model.ErrUnauthenticated
	}
	uses, err := s.Adminships(ctx, ledger.AdminshipFilter{
		SchoolKeyID: &key.ID,
		Page:        ledger.Page{Count: ledger.NoLimit},
	})
	if err != nil {
		return model.SchoolKey{}, err
	}
	if int64(len(uses)) >= key.MaxUses {
		return model.SchoolKey{}, model.ErrConflict
	}
	return key, nil
}
