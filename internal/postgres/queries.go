package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"hourglass/internal/ledger"
	"hourglass/internal/model"
)

// Every optional predicate is written as ($N::type IS NULL OR column = $N),
// so one statement serves all filter combinations. LIMIT NULL means no limit.

const userColumns = `id, creation_time, name, email, challenge_digest`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.CreationTime, &u.Name, &u.Email, &u.ChallengeDigest)
	return u, notFound(err)
}

func (s *Store) AppendUser(ctx context.Context, u *model.User) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO users (creation_time, name, email, challenge_digest)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		u.CreationTime, u.Name, u.Email, u.ChallengeDigest).Scan(&u.ID)
}

func (s *Store) UserByID(ctx context.Context, id int64) (model.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) ORDER BY id LIMIT 1`, email))
}

func (s *Store) UserByChallengeDigest(ctx context.Context, digest string) (model.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE challenge_digest = $1 ORDER BY id LIMIT 1`, digest))
}

func (s *Store) Users(ctx context.Context, f ledger.UserFilter) ([]model.User, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE ($1::bigint IS NULL OR id = $1)
		   AND ($2::bigint IS NULL OR creation_time >= $2)
		   AND ($3::bigint IS NULL OR creation_time <= $3)
		   AND ($4::text IS NULL OR name ILIKE '%' || $4 || '%')
		   AND ($5::text IS NULL OR lower(email) = lower($5))
		 ORDER BY id
		 LIMIT $6 OFFSET $7`,
		f.ID, f.MinCreationTime, f.MaxCreationTime, f.Name, f.Email, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const apiKeyColumns = `k.id, k.creation_time, k.creator_user_id, k.secret_digest, k.kind, k.duration`

func scanApiKey(row pgx.Row) (model.ApiKey, error) {
	var k model.ApiKey
	err := row.Scan(&k.ID, &k.CreationTime, &k.CreatorUserID, &k.SecretDigest, &k.Kind, &k.Duration)
	return k, notFound(err)
}

func (s *Store) AppendApiKey(ctx context.Context, k *model.ApiKey) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO api_keys (creation_time, creator_user_id, secret_digest, kind, duration)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		k.CreationTime, k.CreatorUserID, k.SecretDigest, k.Kind, k.Duration).Scan(&k.ID)
}

func (s *Store) ApiKeys(ctx context.Context, f ledger.ApiKeyFilter) ([]model.ApiKey, error) {
	from := `FROM api_keys k`
	if f.OnlyRecent {
		from = `FROM api_keys k
			INNER JOIN (SELECT max(id) AS id FROM api_keys GROUP BY secret_digest) recent
			ON k.id = recent.id`
	}
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+apiKeyColumns+` `+from+`
		 WHERE ($1::bigint IS NULL OR k.id = $1)
		   AND ($2::bigint IS NULL OR k.creator_user_id = $2)
		   AND ($3::text IS NULL OR k.secret_digest = $3)
		   AND ($4::text IS NULL OR k.kind = $4::text)
		   AND ($5::bigint IS NULL OR k.creation_time >= $5)
		   AND ($6::bigint IS NULL OR k.creation_time <= $6)
		 ORDER BY k.id
		 LIMIT $7 OFFSET $8`,
		f.ID, f.CreatorUserID, f.SecretDigest, f.Kind, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ApiKey
	for rows.Next() {
		k, err := scanApiKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

const passwordColumns = `id, creation_time, creator_user_id, user_id, kind, password_hash, reset_digest`

func scanPassword(row pgx.Row) (model.Password, error) {
	var p model.Password
	err := row.Scan(&p.ID, &p.CreationTime, &p.CreatorUserID, &p.UserID, &p.Kind, &p.PasswordHash, &p.ResetDigest)
	return p, notFound(err)
}

func (s *Store) AppendPassword(ctx context.Context, p *model.Password) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO passwords (creation_time, creator_user_id, user_id, kind, password_hash, reset_digest)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.CreationTime, p.CreatorUserID, p.UserID, p.Kind, p.PasswordHash, p.ResetDigest).Scan(&p.ID)
}

func (s *Store) CurrentPassword(ctx context.Context, userID int64) (model.Password, error) {
	return scanPassword(s.db.QueryRow(ctx,
		`SELECT `+passwordColumns+` FROM passwords WHERE user_id = $1 ORDER BY id DESC LIMIT 1`, userID))
}

func (s *Store) PasswordByResetDigest(ctx context.Context, digest string) (model.Password, error) {
	return scanPassword(s.db.QueryRow(ctx,
		`SELECT `+passwordColumns+` FROM passwords WHERE reset_digest <> '' AND reset_digest = $1 ORDER BY id LIMIT 1`, digest))
}

const challengeColumns = `id, creation_time, secret_digest, name, email, password_hash`

func scanChallenge(row pgx.Row) (model.VerificationChallenge, error) {
	var c model.VerificationChallenge
	err := row.Scan(&c.ID, &c.CreationTime, &c.SecretDigest, &c.Name, &c.Email, &c.PasswordHash)
	return c, notFound(err)
}

func (s *Store) AppendVerificationChallenge(ctx context.Context, c *model.VerificationChallenge) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO verification_challenges (creation_time, secret_digest, name, email, password_hash)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.CreationTime, c.SecretDigest, c.Name, c.Email, c.PasswordHash).Scan(&c.ID)
}

func (s *Store) VerificationChallengeByDigest(ctx context.Context, digest string) (model.VerificationChallenge, error) {
	return scanChallenge(s.db.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM verification_challenges WHERE secret_digest = $1 ORDER BY id LIMIT 1`, digest))
}

func (s *Store) LatestVerificationChallengeByEmail(ctx context.Context, email string) (model.VerificationChallenge, error) {
	return scanChallenge(s.db.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM verification_challenges WHERE lower(email) = lower($1) ORDER BY id DESC LIMIT 1`, email))
}

const resetColumns = `id, creation_time, secret_digest, user_id`

func scanReset(row pgx.Row) (model.PasswordResetRecord, error) {
	var p model.PasswordResetRecord
	err := row.Scan(&p.ID, &p.CreationTime, &p.SecretDigest, &p.UserID)
	return p, notFound(err)
}

func (s *Store) AppendPasswordReset(ctx context.Context, p *model.PasswordResetRecord) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO password_resets (creation_time, secret_digest, user_id)
		 VALUES ($1, $2, $3) RETURNING id`,
		p.CreationTime, p.SecretDigest, p.UserID).Scan(&p.ID)
}

func (s *Store) PasswordResetByDigest(ctx context.Context, digest string) (model.PasswordResetRecord, error) {
	return scanReset(s.db.QueryRow(ctx,
		`SELECT `+resetColumns+` FROM password_resets WHERE secret_digest = $1 ORDER BY id LIMIT 1`, digest))
}

func (s *Store) LatestPasswordResetForUser(ctx context.Context, userID int64) (model.PasswordResetRecord, error) {
	return scanReset(s.db.QueryRow(ctx,
		`SELECT `+resetColumns+` FROM password_resets WHERE user_id = $1 ORDER BY id DESC LIMIT 1`, userID))
}

const schoolColumns = `id, creation_time, creator_user_id, name, description`

func scanSchool(row pgx.Row) (model.School, error) {
	var sc model.School
	err := row.Scan(&sc.ID, &sc.CreationTime, &sc.CreatorUserID, &sc.Name, &sc.Description)
	return sc, notFound(err)
}

func (s *Store) AppendSchool(ctx context.Context, sc *model.School) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO schools (creation_time, creator_user_id, name, description)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		sc.CreationTime, sc.CreatorUserID, sc.Name, sc.Description).Scan(&sc.ID)
}

func (s *Store) SchoolByID(ctx context.Context, id int64) (model.School, error) {
	return scanSchool(s.db.QueryRow(ctx,
		`SELECT `+schoolColumns+` FROM schools WHERE id = $1`, id))
}

func (s *Store) Schools(ctx context.Context, f ledger.SchoolFilter) ([]model.School, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+schoolColumns+`
		 FROM schools
		 WHERE ($1::bigint IS NULL OR id = $1)
		   AND ($2::bigint IS NULL OR creator_user_id = $2)
		   AND ($3::text IS NULL OR name ILIKE '%' || $3 || '%')
		   AND ($4::bigint IS NULL OR creation_time >= $4)
		   AND ($5::bigint IS NULL OR creation_time <= $5)
		 ORDER BY id
		 LIMIT $6 OFFSET $7`,
		f.ID, f.CreatorUserID, f.Name, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.School
	for rows.Next() {
		sc, err := scanSchool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

const adminshipColumns = `a.id, a.creation_time, a.creator_user_id, a.user_id, a.school_id, a.kind, a.school_key_id`

func scanAdminship(row pgx.Row) (model.Adminship, error) {
	var a model.Adminship
	err := row.Scan(&a.ID, &a.CreationTime, &a.CreatorUserID, &a.UserID, &a.SchoolID, &a.Kind, &a.SchoolKeyID)
	return a, notFound(err)
}

func (s *Store) AppendAdminship(ctx context.Context, a *model.Adminship) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO adminships (creation_time, creator_user_id, user_id, school_id, kind, school_key_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.CreationTime, a.CreatorUserID, a.UserID, a.SchoolID, a.Kind, a.SchoolKeyID).Scan(&a.ID)
}

func (s *Store) Adminships(ctx context.Context, f ledger.AdminshipFilter) ([]model.Adminship, error) {
	from := `FROM adminships a`
	if f.OnlyRecent {
		from = `FROM adminships a
			INNER JOIN (SELECT max(id) AS id FROM adminships GROUP BY user_id, school_id) recent
			ON a.id = recent.id`
	}
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+adminshipColumns+` `+from+`
		 WHERE ($1::bigint IS NULL OR a.id = $1)
		   AND ($2::bigint IS NULL OR a.creator_user_id = $2)
		   AND ($3::bigint IS NULL OR a.user_id = $3)
		   AND ($4::bigint IS NULL OR a.school_id = $4)
		   AND ($5::text IS NULL OR a.kind = $5::text)
		   AND ($6::bigint IS NULL OR a.school_key_id = $6)
		   AND ($7::bigint IS NULL OR a.creation_time >= $7)
		   AND ($8::bigint IS NULL OR a.creation_time <= $8)
		 ORDER BY a.id
		 LIMIT $9 OFFSET $10`,
		f.ID, f.CreatorUserID, f.UserID, f.SchoolID, f.Kind, f.SchoolKeyID, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Adminship
	for rows.Next() {
		a, err := scanAdminship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const schoolKeyColumns = `k.id, k.creation_time, k.creator_user_id, k.school_id, k.secret_digest, k.kind, k.max_uses, k.duration`

func scanSchoolKey(row pgx.Row) (model.SchoolKey, error) {
	var k model.SchoolKey
	err := row.Scan(&k.ID, &k.CreationTime, &k.CreatorUserID, &k.SchoolID, &k.SecretDigest, &k.Kind, &k.MaxUses, &k.Duration)
	return k, notFound(err)
}

func (s *Store) AppendSchoolKey(ctx context.Context, k *model.SchoolKey) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO school_keys (creation_time, creator_user_id, school_id, secret_digest, kind, max_uses, duration)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		k.CreationTime, k.CreatorUserID, k.SchoolID, k.SecretDigest, k.Kind, k.MaxUses, k.Duration).Scan(&k.ID)
}

func (s *Store) SchoolKeyByID(ctx context.Context, id int64) (model.SchoolKey, error) {
	return scanSchoolKey(s.db.QueryRow(ctx,
		`SELECT `+schoolKeyColumns+` FROM school_keys k WHERE k.id = $1`, id))
}

func (s *Store) SchoolKeys(ctx context.Context, f ledger.SchoolKeyFilter) ([]model.SchoolKey, error) {
	from := `FROM school_keys k`
	if f.OnlyRecent {
		from = `FROM school_keys k
			INNER JOIN (SELECT max(id) AS id FROM school_keys GROUP BY secret_digest) recent
			ON k.id = recent.id`
	}
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+schoolKeyColumns+` `+from+`
		 WHERE ($1::bigint IS NULL OR k.id = $1)
		   AND ($2::bigint IS NULL OR k.creator_user_id = $2)
		   AND ($3::bigint IS NULL OR k.school_id = $3)
		   AND ($4::text IS NULL OR k.secret_digest = $4)
		   AND ($5::text IS NULL OR k.kind = $5::text)
		   AND ($6::bigint IS NULL OR k.creation_time >= $6)
		   AND ($7::bigint IS NULL OR k.creation_time <= $7)
		 ORDER BY k.id
		 LIMIT $8 OFFSET $9`,
		f.ID, f.CreatorUserID, f.SchoolID, f.SecretDigest, f.Kind, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SchoolKey
	for rows.Next() {
		k, err := scanSchoolKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

const locationColumns = `id, creation_time, creator_user_id, school_id, name, address, phone`

func scanLocation(row pgx.Row) (model.Location, error) {
	var l model.Location
	err := row.Scan(&l.ID, &l.CreationTime, &l.CreatorUserID, &l.SchoolID, &l.Name, &l.Address, &l.Phone)
	return l, notFound(err)
}

func (s *Store) AppendLocation(ctx context.Context, l *model.Location) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO locations (creation_time, creator_user_id, school_id, name, address, phone)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		l.CreationTime, l.CreatorUserID, l.SchoolID, l.Name, l.Address, l.Phone).Scan(&l.ID)
}

func (s *Store) LocationByID(ctx context.Context, id int64) (model.Location, error) {
	return scanLocation(s.db.QueryRow(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
}

func (s *Store) Locations(ctx context.Context, f ledger.LocationFilter) ([]model.Location, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+locationColumns+`
		 FROM locations
		 WHERE ($1::bigint IS NULL OR id = $1)
		   AND ($2::bigint IS NULL OR creator_user_id = $2)
		   AND ($3::bigint IS NULL OR school_id = $3)
		   AND ($4::text IS NULL OR name ILIKE '%' || $4 || '%')
		   AND ($5::bigint IS NULL OR creation_time >= $5)
		   AND ($6::bigint IS NULL OR creation_time <= $6)
		 ORDER BY id
		 LIMIT $7 OFFSET $8`,
		f.ID, f.CreatorUserID, f.SchoolID, f.Name, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const courseColumns = `id, creation_time, creator_user_id, school_id, location_id, name, description`

func scanCourse(row pgx.Row) (model.Course, error) {
	var c model.Course
	err := row.Scan(&c.ID, &c.CreationTime, &c.CreatorUserID, &c.SchoolID, &c.LocationID, &c.Name, &c.Description)
	return c, notFound(err)
}

func (s *Store) AppendCourse(ctx context.Context, c *model.Course) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO courses (creation_time, creator_user_id, school_id, location_id, name, description)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.CreationTime, c.CreatorUserID, c.SchoolID, c.LocationID, c.Name, c.Description).Scan(&c.ID)
}

func (s *Store) CourseByID(ctx context.Context, id int64) (model.Course, error) {
	return scanCourse(s.db.QueryRow(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
}

func (s *Store) Courses(ctx context.Context, f ledger.CourseFilter) ([]model.Course, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+courseColumns+`
		 FROM courses
		 WHERE ($1::bigint IS NULL OR id = $1)
		   AND ($2::bigint IS NULL OR creator_user_id = $2)
		   AND ($3::bigint IS NULL OR school_id = $3)
		   AND ($4::bigint IS NULL OR location_id = $4)
		   AND ($5::text IS NULL OR name ILIKE '%' || $5 || '%')
		   AND ($6::bigint IS NULL OR creation_time >= $6)
		   AND ($7::bigint IS NULL OR creation_time <= $7)
		 ORDER BY id
		 LIMIT $8 OFFSET $9`,
		f.ID, f.CreatorUserID, f.SchoolID, f.LocationID, f.Name, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const courseKeyColumns = `k.id, k.creation_time, k.creator_user_id, k.course_id, k.secret_digest, k.kind, k.membership_kind, k.max_uses, k.duration`

func scanCourseKey(row pgx.Row) (model.CourseKey, error) {
	var k model.CourseKey
	err := row.Scan(&k.ID, &k.CreationTime, &k.CreatorUserID, &k.CourseID, &k.SecretDigest, &k.Kind, &k.MembershipKind, &k.MaxUses, &k.Duration)
	return k, notFound(err)
}

func (s *Store) AppendCourseKey(ctx context.Context, k *model.CourseKey) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO course_keys (creation_time, creator_user_id, course_id, secret_digest, kind, membership_kind, max_uses, duration)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		k.CreationTime, k.CreatorUserID, k.CourseID, k.SecretDigest, k.Kind, k.MembershipKind, k.MaxUses, k.Duration).Scan(&k.ID)
}

func (s *Store) CourseKeyByID(ctx context.Context, id int64) (model.CourseKey, error) {
	return scanCourseKey(s.db.QueryRow(ctx,
		`SELECT `+courseKeyColumns+` FROM course_keys k WHERE k.id = $1`, id))
}

func (s *Store) CourseKeys(ctx context.Context, f ledger.CourseKeyFilter) ([]model.CourseKey, error) {
	from := `FROM course_keys k`
	if f.OnlyRecent {
		from = `FROM course_keys k
			INNER JOIN (SELECT max(id) AS id FROM course_keys GROUP BY secret_digest) recent
			ON k.id = recent.id`
	}
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+courseKeyColumns+` `+from+`
		 WHERE ($1::bigint IS NULL OR k.id = $1)
		   AND ($2::bigint IS NULL OR k.creator_user_id = $2)
		   AND ($3::bigint IS NULL OR k.course_id = $3)
		   AND ($4::text IS NULL OR k.secret_digest = $4)
		   AND ($5::text IS NULL OR k.kind = $5::text)
		   AND ($6::text IS NULL OR k.membership_kind = $6::text)
		   AND ($7::bigint IS NULL OR k.creation_time >= $7)
		   AND ($8::bigint IS NULL OR k.creation_time <= $8)
		 ORDER BY k.id
		 LIMIT $9 OFFSET $10`,
		f.ID, f.CreatorUserID, f.CourseID, f.SecretDigest, f.Kind, f.MembershipKind, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CourseKey
	for rows.Next() {
		k, err := scanCourseKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

const membershipColumns = `m.id, m.creation_time, m.creator_user_id, m.user_id, m.course_id, m.kind, m.source, m.course_key_id`

func scanMembership(row pgx.Row) (model.CourseMembership, error) {
	var m model.CourseMembership
	err := row.Scan(&m.ID, &m.CreationTime, &m.CreatorUserID, &m.UserID, &m.CourseID, &m.Kind, &m.Source, &m.CourseKeyID)
	return m, notFound(err)
}

func (s *Store) AppendCourseMembership(ctx context.Context, m *model.CourseMembership) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO course_memberships (creation_time, creator_user_id, user_id, course_id, kind, source, course_key_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		m.CreationTime, m.CreatorUserID, m.UserID, m.CourseID, m.Kind, m.Source, m.CourseKeyID).Scan(&m.ID)
}

func (s *Store) CourseMemberships(ctx context.Context, f ledger.CourseMembershipFilter) ([]model.CourseMembership, error) {
	from := `FROM course_memberships m`
	if f.OnlyRecent {
		from = `FROM course_memberships m
			INNER JOIN (SELECT max(id) AS id FROM course_memberships GROUP BY user_id, course_id) recent
			ON m.id = recent.id`
	}
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+membershipColumns+` `+from+`
		 WHERE ($1::bigint IS NULL OR m.id = $1)
		   AND ($2::bigint IS NULL OR m.creator_user_id = $2)
		   AND ($3::bigint IS NULL OR m.user_id = $3)
		   AND ($4::bigint IS NULL OR m.course_id = $4)
		   AND ($5::text IS NULL OR m.kind = $5::text)
		   AND ($6::text IS NULL OR m.source = $6::text)
		   AND ($7::bigint IS NULL OR m.course_key_id = $7)
		   AND ($8::bigint IS NULL OR m.creation_time >= $8)
		   AND ($9::bigint IS NULL OR m.creation_time <= $9)
		 ORDER BY m.id
		 LIMIT $10 OFFSET $11`,
		f.ID, f.CreatorUserID, f.UserID, f.CourseID, f.Kind, f.Source, f.CourseKeyID, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CourseMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const sessionColumns = `id, creation_time, creator_user_id, course_id, location_id, name, start_time, duration, hidden`

func scanSession(row pgx.Row) (model.Session, error) {
	var se model.Session
	err := row.Scan(&se.ID, &se.CreationTime, &se.CreatorUserID, &se.CourseID, &se.LocationID, &se.Name, &se.StartTime, &se.Duration, &se.Hidden)
	return se, notFound(err)
}

func (s *Store) AppendSession(ctx context.Context, se *model.Session) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO sessions (creation_time, creator_user_id, course_id, location_id, name, start_time, duration, hidden)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		se.CreationTime, se.CreatorUserID, se.CourseID, se.LocationID, se.Name, se.StartTime, se.Duration, se.Hidden).Scan(&se.ID)
}

func (s *Store) SessionByID(ctx context.Context, id int64) (model.Session, error) {
	return scanSession(s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

func (s *Store) Sessions(ctx context.Context, f ledger.SessionFilter) ([]model.Session, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE ($1::bigint IS NULL OR id = $1)
		   AND ($2::bigint IS NULL OR creator_user_id = $2)
		   AND ($3::bigint IS NULL OR course_id = $3)
		   AND ($4::bigint IS NULL OR location_id = $4)
		   AND ($5::text IS NULL OR name ILIKE '%' || $5 || '%')
		   AND ($6::boolean IS NULL OR hidden = $6)
		   AND ($7::bigint IS NULL OR start_time >= $7)
		   AND ($8::bigint IS NULL OR start_time <= $8)
		   AND ($9::bigint IS NULL OR creation_time >= $9)
		   AND ($10::bigint IS NULL OR creation_time <= $10)
		 ORDER BY id
		 LIMIT $11 OFFSET $12`,
		f.ID, f.CreatorUserID, f.CourseID, f.LocationID, f.Name, f.Hidden,
		f.MinStartTime, f.MaxStartTime, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		se, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

const requestColumns = `r.id, r.creation_time, r.attendee_user_id, r.course_id, r.start_time, r.duration, r.message`

func scanRequest(row pgx.Row) (model.SessionRequest, error) {
	var r model.SessionRequest
	err := row.Scan(&r.ID, &r.CreationTime, &r.AttendeeUserID, &r.CourseID, &r.StartTime, &r.Duration, &r.Message)
	return r, notFound(err)
}

func (s *Store) AppendSessionRequest(ctx context.Context, r *model.SessionRequest) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO session_requests (creation_time, attendee_user_id, course_id, start_time, duration, message)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		r.CreationTime, r.AttendeeUserID, r.CourseID, r.StartTime, r.Duration, r.Message).Scan(&r.ID)
}

func (s *Store) SessionRequestByID(ctx context.Context, id int64) (model.SessionRequest, error) {
	return scanRequest(s.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM session_requests r WHERE r.id = $1`, id))
}

func (s *Store) SessionRequests(ctx context.Context, f ledger.SessionRequestFilter) ([]model.SessionRequest, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM session_requests r
		 WHERE ($1::bigint IS NULL OR r.id = $1)
		   AND ($2::bigint IS NULL OR r.attendee_user_id = $2)
		   AND ($3::bigint IS NULL OR r.course_id = $3)
		   AND ($4::bigint IS NULL OR r.start_time >= $4)
		   AND ($5::bigint IS NULL OR r.start_time <= $5)
		   AND ($6::bigint IS NULL OR r.creation_time >= $6)
		   AND ($7::bigint IS NULL OR r.creation_time <= $7)
		   AND ($8::boolean IS NULL OR $8 = EXISTS (
			SELECT 1 FROM session_request_responses resp
			WHERE resp.session_request_id = r.id))
		 ORDER BY r.id
		 LIMIT $9 OFFSET $10`,
		f.ID, f.AttendeeUserID, f.CourseID, f.MinStartTime, f.MaxStartTime,
		f.MinCreationTime, f.MaxCreationTime, f.Responded, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SessionRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const requestResponseColumns = `session_request_id, creation_time, creator_user_id, message, accepted, committment_id`

func scanRequestResponse(row pgx.Row) (model.SessionRequestResponse, error) {
	var r model.SessionRequestResponse
	err := row.Scan(&r.SessionRequestID, &r.CreationTime, &r.CreatorUserID, &r.Message, &r.Accepted, &r.CommittmentID)
	return r, notFound(err)
}

func (s *Store) AppendSessionRequestResponse(ctx context.Context, r *model.SessionRequestResponse) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO session_request_responses (session_request_id, creation_time, creator_user_id, message, accepted, committment_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.SessionRequestID, r.CreationTime, r.CreatorUserID, r.Message, r.Accepted, r.CommittmentID)
	return err
}

func (s *Store) SessionRequestResponseByID(ctx context.Context, sessionRequestID int64) (model.SessionRequestResponse, error) {
	return scanRequestResponse(s.db.QueryRow(ctx,
		`SELECT `+requestResponseColumns+` FROM session_request_responses WHERE session_request_id = $1`, sessionRequestID))
}

func (s *Store) SessionRequestResponses(ctx context.Context, f ledger.SessionRequestResponseFilter) ([]model.SessionRequestResponse, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+requestResponseColumns+`
		 FROM session_request_responses
		 WHERE ($1::bigint IS NULL OR session_request_id = $1)
		   AND ($2::bigint IS NULL OR creator_user_id = $2)
		   AND ($3::boolean IS NULL OR accepted = $3)
		   AND ($4::bigint IS NULL OR committment_id = $4)
		   AND ($5::bigint IS NULL OR creation_time >= $5)
		   AND ($6::bigint IS NULL OR creation_time <= $6)
		 ORDER BY session_request_id
		 LIMIT $7 OFFSET $8`,
		f.SessionRequestID, f.CreatorUserID, f.Accepted, f.CommittmentID, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SessionRequestResponse
	for rows.Next() {
		r, err := scanRequestResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const committmentColumns = `c.id, c.creation_time, c.creator_user_id, c.attendee_user_id, c.session_id, c.cancellable`

func scanCommittment(row pgx.Row) (model.Committment, error) {
	var c model.Committment
	err := row.Scan(&c.ID, &c.CreationTime, &c.CreatorUserID, &c.AttendeeUserID, &c.SessionID, &c.Cancellable)
	return c, notFound(err)
}

func (s *Store) AppendCommittment(ctx context.Context, c *model.Committment) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO committments (creation_time, creator_user_id, attendee_user_id, session_id, cancellable)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.CreationTime, c.CreatorUserID, c.AttendeeUserID, c.SessionID, c.Cancellable).Scan(&c.ID)
}

func (s *Store) CommittmentByID(ctx context.Context, id int64) (model.Committment, error) {
	return scanCommittment(s.db.QueryRow(ctx,
		`SELECT `+committmentColumns+` FROM committments c WHERE c.id = $1`, id))
}

func (s *Store) Committments(ctx context.Context, f ledger.CommittmentFilter) ([]model.Committment, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+committmentColumns+`
		 FROM committments c
		 WHERE ($1::bigint IS NULL OR c.id = $1)
		   AND ($2::bigint IS NULL OR c.creator_user_id = $2)
		   AND ($3::bigint IS NULL OR c.attendee_user_id = $3)
		   AND ($4::bigint IS NULL OR c.session_id = $4)
		   AND ($5::boolean IS NULL OR c.cancellable = $5)
		   AND ($6::bigint IS NULL OR c.creation_time >= $6)
		   AND ($7::bigint IS NULL OR c.creation_time <= $7)
		   AND ($8::boolean IS NULL OR $8 = EXISTS (
			SELECT 1 FROM committment_responses resp
			WHERE resp.committment_id = c.id))
		 ORDER BY c.id
		 LIMIT $9 OFFSET $10`,
		f.ID, f.CreatorUserID, f.AttendeeUserID, f.SessionID, f.Cancellable,
		f.MinCreationTime, f.MaxCreationTime, f.Responded, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Committment
	for rows.Next() {
		c, err := scanCommittment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const committmentResponseColumns = `committment_id, creation_time, creator_user_id, kind`

func scanCommittmentResponse(row pgx.Row) (model.CommittmentResponse, error) {
	var r model.CommittmentResponse
	err := row.Scan(&r.CommittmentID, &r.CreationTime, &r.CreatorUserID, &r.Kind)
	return r, notFound(err)
}

func (s *Store) AppendCommittmentResponse(ctx context.Context, r *model.CommittmentResponse) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO committment_responses (committment_id, creation_time, creator_user_id, kind)
		 VALUES ($1, $2, $3, $4)`,
		r.CommittmentID, r.CreationTime, r.CreatorUserID, r.Kind)
	return err
}

func (s *Store) CommittmentResponseByID(ctx context.Context, committmentID int64) (model.CommittmentResponse, error) {
	return scanCommittmentResponse(s.db.QueryRow(ctx,
		`SELECT `+committmentResponseColumns+` FROM committment_responses WHERE committment_id = $1`, committmentID))
}

func (s *Store) CommittmentResponses(ctx context.Context, f ledger.CommittmentResponseFilter) ([]model.CommittmentResponse, error) {
	offset, limit := f.Window()
	rows, err := s.db.Query(ctx,
		`SELECT `+committmentResponseColumns+`
		 FROM committment_responses
		 WHERE ($1::bigint IS NULL OR committment_id = $1)
		   AND ($2::bigint IS NULL OR creator_user_id = $2)
		   AND ($3::text IS NULL OR kind = $3::text)
		   AND ($4::bigint IS NULL OR creation_time >= $4)
		   AND ($5::bigint IS NULL OR creation_time <= $5)
		 ORDER BY committment_id
		 LIMIT $6 OFFSET $7`,
		f.CommittmentID, f.CreatorUserID, f.Kind, f.MinCreationTime, f.MaxCreationTime, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CommittmentResponse
	for rows.Next() {
		r, err := scanCommittmentResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
