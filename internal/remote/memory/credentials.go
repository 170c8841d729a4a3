package memory

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"nestfeed/internal/remote"
	"nestfeed/pkg/derrors"
)

// Credentials is an in-process CredentialService: bcrypt-hashed passwords,
// HS256 identity tokens, and a change stream that delivers events to each
// subscriber sequentially on a dedicated goroutine.
type Credentials struct {
	signingKey []byte

	mu      sync.Mutex
	users   map[string]userRecord
	current *remote.Credential
	subs    map[int]*credSub
	nextSub int
}

type userRecord struct {
	identity string
	hash     []byte
}

type credSub struct {
	events chan *remote.Credential
	stop   chan struct{}
	done   chan struct{}
}

// NewCredentials creates an empty credential service signing identity tokens
// with key.
func NewCredentials(signingKey string) *Credentials {
	return &Credentials{
		signingKey: []byte(signingKey),
		users:      make(map[string]userRecord),
		subs:       make(map[int]*credSub),
	}
}

// OnCredentialChange registers cb. The current state is delivered first; the
// returned function blocks until any in-flight callback has finished.
func (c *Credentials) OnCredentialChange(cb func(cred *remote.Credential)) func() {
	sub := &credSub{
		events: make(chan *remote.Credential, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	key := c.nextSub
	c.nextSub++
	c.subs[key] = sub
	sub.push(c.current)
	c.mu.Unlock()

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-sub.stop:
				return
			case cred := <-sub.events:
				cb(cred)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, key)
			c.mu.Unlock()
			close(sub.stop)
			<-sub.done
		})
	}
}

// push queues an event, dropping it if the subscriber has fallen 16 events
// behind. Auth events are rare enough that this never happens in practice.
func (s *credSub) push(cred *remote.Credential) {
	select {
	case s.events <- cred:
	default:
	}
}

// notify fans the new state out to all subscribers. Caller holds c.mu.
func (c *Credentials) notify() {
	for _, sub := range c.subs {
		sub.push(c.current)
	}
}

// Create registers a new credential. The new identity is signed in, which
// fires the change stream; callers must not assume the profile write that
// typically follows has happened by the time the stream fires.
func (c *Credentials) Create(ctx context.Context, email, password string) (remote.Credential, error) {
	if err := ctx.Err(); err != nil {
		return remote.Credential{}, err
	}
	if email == "" || password == "" {
		return remote.Credential{}, derrors.New(derrors.CodeAuth, "email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return remote.Credential{}, derrors.Wrap(err, derrors.CodeAuth, "hash password")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.users[email]; exists {
		return remote.Credential{}, derrors.New(derrors.CodeAuth, "email already registered")
	}

	identity := uuid.NewString()
	c.users[email] = userRecord{identity: identity, hash: hash}

	cred, err := c.signedCredential(identity, email)
	if err != nil {
		return remote.Credential{}, err
	}
	c.current = &cred
	c.notify()
	return cred, nil
}

// Verify checks an email/password pair and signs the identity in on success.
// Failures leave the current credential untouched.
func (c *Credentials) Verify(ctx context.Context, email, password string) (remote.Credential, error) {
	if err := ctx.Err(); err != nil {
		return remote.Credential{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.users[email]
	if !ok {
		return remote.Credential{}, derrors.New(derrors.CodeAuth, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(password)); err != nil {
		return remote.Credential{}, derrors.New(derrors.CodeAuth, "invalid email or password")
	}

	cred, err := c.signedCredential(rec.identity, email)
	if err != nil {
		return remote.Credential{}, err
	}
	c.current = &cred
	c.notify()
	return cred, nil
}

// Invalidate signs the current credential out.
func (c *Credentials) Invalidate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = nil
	c.notify()
	return nil
}

func (c *Credentials) signedCredential(identity, email string) (remote.Credential, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  identity,
		IssuedAt: jwt.NewNumericDate(now),
	})
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return remote.Credential{}, derrors.Wrap(err, derrors.CodeAuth, "sign identity token")
	}
	return remote.Credential{Identity: identity, Email: email, Token: signed}, nil
}

// ParseIdentity verifies an identity token and returns its subject. Used by
// the transport layer to authenticate device requests.
func (c *Credentials) ParseIdentity(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, derrors.New(derrors.CodeAuth, "unexpected signing method")
		}
		return c.signingKey, nil
	})
	if err != nil {
		return "", derrors.Wrap(err, derrors.CodeAuth, "parse identity token")
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", derrors.New(derrors.CodeAuth, "identity token missing subject")
	}
	return claims.Subject, nil
}
