package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alexjbarnes/backoffice/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	sessionBucket   = []byte("session")
	sessionKey      = []byte("current")
	usersBucket     = []byte("users")
	subjectsBucket  = []byte("user_subjects")
	revokedBucket   = []byte("revoked_tokens")
	allStateBuckets = [][]byte{sessionBucket, usersBucket, subjectsBucket, revokedBucket}
)

// Session is the signed-in operator as stored on disk.
type Session struct {
	Token      string      `json:"token"`
	User       models.User `json:"user"`
	IsNewUser  bool        `json:"is_new_user"`
	LoggedInAt time.Time   `json:"logged_in_at"`
}

// UserRecord is a user known to the reference API, keyed by the
// identity provider subject.
type UserRecord struct {
	ID        uint64    `json:"id"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

// Model converts the record to the wire profile.
func (u UserRecord) Model() models.User {
	return models.User{
		ID:     userID(u.ID),
		Email:  u.Email,
		Name:   u.Name,
		Avatar: u.Avatar,
	}
}

// State wraps a bbolt database for all persistent application state.
// The client keeps its session here; the reference API keeps users and
// revoked token ids. Each process opens its own file.
type State struct {
	db  *bolt.DB
	now func() time.Time
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allStateBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// --- client session ---

// Session returns the stored session, or nil when signed out.
func (s *State) Session() (*Session, error) {
	var sess *Session

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get(sessionKey)
		if v == nil {
			return nil
		}

		sess = &Session{}

		return json.Unmarshal(v, sess)
	})

	return sess, err
}

// Token returns the cached session token, or empty string.
func (s *State) Token() string {
	sess, err := s.Session()
	if err != nil || sess == nil {
		return ""
	}

	return sess.Token
}

// SetLogin replaces the session with the result of a code exchange.
func (s *State) SetLogin(res *models.LoginResult) error {
	sess := Session{
		Token:      res.Token,
		User:       res.User,
		IsNewUser:  res.IsNewUser,
		LoggedInAt: s.now().UTC(),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put(sessionKey, data)
	})
}

// ClearSession removes the stored session.
func (s *State) ClearSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete(sessionKey)
	})
}

// --- reference API users ---

// UpsertUser creates or refreshes the user for an identity provider
// subject. created reports whether the user did not exist before.
func (s *State) UpsertUser(subject, email, name, avatar string) (UserRecord, bool, error) {
	var (
		rec     UserRecord
		created bool
	)

	err := s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(usersBucket)
		subjects := tx.Bucket(subjectsBucket)
		now := s.now().UTC()

		if idBytes := subjects.Get([]byte(subject)); idBytes != nil {
			v := users.Get(idBytes)
			if v == nil {
				return fmt.Errorf("user index points at missing user for subject %q", subject)
			}

			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
		} else {
			id, err := users.NextSequence()
			if err != nil {
				return err
			}

			rec = UserRecord{ID: id, Subject: subject, CreatedAt: now}
			created = true

			if err := subjects.Put([]byte(subject), itob(id)); err != nil {
				return err
			}
		}

		rec.Email = email
		rec.Name = name
		rec.Avatar = avatar
		rec.LastLogin = now

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return users.Put(itob(rec.ID), data)
	})

	return rec, created, err
}

// GetUser returns the user with the given id, or nil if not found.
func (s *State) GetUser(id uint64) (*UserRecord, error) {
	var rec *UserRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(usersBucket).Get(itob(id))
		if v == nil {
			return nil
		}

		rec = &UserRecord{}

		return json.Unmarshal(v, rec)
	})

	return rec, err
}

// RevokeToken records a token id as revoked until expiresAt.
func (s *State) RevokeToken(jti string, expiresAt time.Time) error {
	data, err := expiresAt.UTC().MarshalText()
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(revokedBucket).Put([]byte(jti), data)
	})
}

// IsRevoked reports whether a token id has been revoked.
func (s *State) IsRevoked(jti string) bool {
	var revoked bool

	_ = s.db.View(func(tx *bolt.Tx) error {
		revoked = tx.Bucket(revokedBucket).Get([]byte(jti)) != nil
		return nil
	})

	return revoked
}

// PruneRevoked drops revoked token ids whose tokens have expired and
// returns how many were removed.
func (s *State) PruneRevoked() (int, error) {
	removed := 0
	now := s.now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(revokedBucket)

		var stale [][]byte

		err := b.ForEach(func(k, v []byte) error {
			var exp time.Time
			if err := exp.UnmarshalText(v); err != nil || now.After(exp) {
				stale = append(stale, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(stale)

		return nil
	})

	return removed, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)

	return b
}

func userID(v uint64) models.UserID {
	return models.UserID(strconv.FormatUint(v, 10))
}
