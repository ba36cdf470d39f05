package netwalker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SessionState is the Connection Manager's per-session state machine
// (§4.1): Dialing -> Authenticating -> Ready -> InCommand -> Ready ->
// Closing -> Closed, with any state able to transition to Broken on I/O
// error, and Broken only legally able to reach Closing -> Closed.
type SessionState int

const (
	StateDialing SessionState = iota
	StateAuthenticating
	StateReady
	StateInCommand
	StateClosing
	StateClosed
	StateBroken
)

// Transport identifies which protocol a Session is using.
type Transport string

const (
	TransportSSH    Transport = "ssh"
	TransportTelnet Transport = "telnet"
)

// ConnectErrorKind classifies a failed open() attempt (§7).
type ConnectErrorKind string

const (
	ConnectRefused    ConnectErrorKind = "connect-refused"
	ConnectTimeout    ConnectErrorKind = "connect-timeout"
	ConnectAuthReject ConnectErrorKind = "auth-rejected"
)

// ConnectError is returned by Manager.Open on failure.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ExecErrorKind classifies a failed execute() call (§7).
type ExecErrorKind string

const (
	ExecTimeout    ExecErrorKind = "timeout"
	ExecEOF        ExecErrorKind = "eof"
	ExecPromptLost ExecErrorKind = "prompt-lost"
)

// ExecError is returned by Manager.Execute on failure.
type ExecError struct {
	Kind ExecErrorKind
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ConnectOptions carries per-open tunables. Zero values select the
// defaults from spec.md §4.1/§6.
type ConnectOptions struct {
	SSHPort         int
	TelnetPort      int
	PreferredMethod string // "ssh" | "telnet"
	ConnectTimeout  time.Duration
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.SSHPort <= 0 {
		o.SSHPort = 22
	}
	if o.TelnetPort <= 0 {
		o.TelnetPort = 23
	}
	if o.PreferredMethod == "" {
		o.PreferredMethod = "ssh"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	return o
}

// promptMatcher recognizes a Cisco-style CLI prompt boundary: a non-blank
// line ending in '#' (privileged) or '>' (unprivileged), optionally
// preceded by a hostname, with no mandate on the exact algorithm (§9).
var promptMatcher = regexp.MustCompile(`(?m)^\S[^\r\n]*[>#]\s*$`)

var unprivilegedPromptMatcher = regexp.MustCompile(`(?m)^\S[^\r\n]*>\s*$`)

// readChunk is one delivery from a Session's reader pump: a copy of the
// bytes read, or the error that ended the stream.
type readChunk struct {
	data []byte
	err  error
}

// startReadPump drains r into a channel from a dedicated goroutine, so
// readUntil can enforce its timeout with a select instead of blocking in
// Read. The goroutine exits when r returns an error, which closing the
// session's transport guarantees.
func startReadPump(r io.Reader) <-chan readChunk {
	ch := make(chan readChunk, 16)
	go func() {
		defer close(ch)
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				ch <- readChunk{data: data}
			}
			if err != nil {
				ch <- readChunk{err: err}
				return
			}
		}
	}()
	return ch
}

// Session is a live interactive CLI session against one Endpoint. A
// Session is never shared across workers (§5).
type Session struct {
	Endpoint  Endpoint
	Transport Transport

	mu    sync.Mutex
	state SessionState

	readCh        <-chan readChunk
	writer        io.Writer
	closer        io.Closer
	sshClient     *ssh.Client
	sshSession    *ssh.Session
	paginationSet bool
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Manager is the Connection Manager (§4.1): it opens sessions (SSH first,
// Telnet fallback), executes commands against them, and guarantees orderly
// teardown, including a bounded-deadline close_all and leak surveillance.
type Manager struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}

	// ForceCleanupCount increments each time close_all abandons a session
	// still alive after its deadline (§4.1).
	ForceCleanupCount int
}

// NewManager constructs an empty Connection Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[*Session]struct{})}
}

// TotalLiveSessions returns the count of all live sessions across hosts,
// polled by the Discovery Engine's leak surveillance (§4.1).
func (m *Manager) TotalLiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) trackOpen(s *Session) {
	m.mu.Lock()
	m.sessions[s] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) trackClose(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s)
	m.mu.Unlock()
}

// Open attempts SSH first; on transport-level refusal, unsupported
// transport, or auth-type mismatch it falls back to Telnet with the same
// credentials. An explicit auth rejection is terminal: the other transport
// is never tried after it (§4.1/§7).
func (m *Manager) Open(ctx context.Context, ep Endpoint, creds Credentials, opts ConnectOptions) (*Session, error) {
	opts = opts.withDefaults()

	first, second := TransportSSH, TransportTelnet
	if strings.EqualFold(opts.PreferredMethod, "telnet") {
		first, second = TransportTelnet, TransportSSH
	}

	sess, err := m.dial(ctx, first, ep, creds, opts)
	if err == nil {
		m.trackOpen(sess)
		return sess, nil
	}

	var connErr *ConnectError
	if errors.As(err, &connErr) && connErr.Kind == ConnectAuthReject {
		return nil, err
	}

	sess, err2 := m.dial(ctx, second, ep, creds, opts)
	if err2 != nil {
		return nil, err2
	}
	m.trackOpen(sess)
	return sess, nil
}

func (m *Manager) dial(ctx context.Context, transport Transport, ep Endpoint, creds Credentials, opts ConnectOptions) (*Session, error) {
	switch transport {
	case TransportSSH:
		return dialSSH(ctx, ep, creds, opts)
	case TransportTelnet:
		return dialTelnetSession(ctx, ep, creds, opts)
	default:
		return nil, &ConnectError{Kind: ConnectRefused, Err: fmt.Errorf("unknown transport %q", transport)}
	}
}

func dialSSH(ctx context.Context, ep Endpoint, creds Credentials, opts ConnectOptions) (*Session, error) {
	addr := net.JoinHostPort(ep.Host, fmt.Sprintf("%d", opts.SSHPort))
	config := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         opts.ConnectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, config)
		resultCh <- dialResult{client: c, err: err}
	}()

	var client *ssh.Client
	select {
	case <-dialCtx.Done():
		return nil, &ConnectError{Kind: ConnectTimeout, Err: dialCtx.Err()}
	case r := <-resultCh:
		if r.err != nil {
			return nil, classifySSHDialError(r.err)
		}
		client = r.client
	}

	sshSession, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, &ConnectError{Kind: ConnectRefused, Err: fmt.Errorf("open shell session: %w", err)}
	}

	stdin, err := sshSession.StdinPipe()
	if err != nil {
		sshSession.Close()
		client.Close()
		return nil, &ConnectError{Kind: ConnectRefused, Err: err}
	}
	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		sshSession.Close()
		client.Close()
		return nil, &ConnectError{Kind: ConnectRefused, Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 9600,
		ssh.TTY_OP_OSPEED: 9600,
	}
	if err := sshSession.RequestPty("vt100", 200, 512, modes); err != nil {
		sshSession.Close()
		client.Close()
		return nil, &ConnectError{Kind: ConnectRefused, Err: fmt.Errorf("request pty: %w", err)}
	}
	if err := sshSession.Shell(); err != nil {
		sshSession.Close()
		client.Close()
		return nil, &ConnectError{Kind: ConnectRefused, Err: fmt.Errorf("start shell: %w", err)}
	}

	s := &Session{
		Endpoint:   ep,
		Transport:  TransportSSH,
		state:      StateAuthenticating,
		readCh:     startReadPump(stdout),
		writer:     stdin,
		closer:     closerFunc(func() error { sessErr := sshSession.Close(); client.Close(); return sessErr }),
		sshClient:  client,
		sshSession: sshSession,
	}

	banner, err := drainUntilPrompt(s, opts.ConnectTimeout)
	if err != nil {
		s.Close()
		return nil, &ConnectError{Kind: ConnectTimeout, Err: err}
	}

	if err := maybeEnable(s, creds, opts.ConnectTimeout, banner); err != nil {
		s.Close()
		return nil, &ConnectError{Kind: ConnectAuthReject, Err: err}
	}

	s.setState(StateReady)
	return s, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func classifySSHDialError(err error) *ConnectError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "auth"):
		return &ConnectError{Kind: ConnectAuthReject, Err: err}
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return &ConnectError{Kind: ConnectTimeout, Err: err}
	default:
		return &ConnectError{Kind: ConnectRefused, Err: err}
	}
}

func dialTelnetSession(ctx context.Context, ep Endpoint, creds Credentials, opts ConnectOptions) (*Session, error) {
	addr := net.JoinHostPort(ep.Host, fmt.Sprintf("%d", opts.TelnetPort))
	conn, err := dialTelnet(ctx, addr, opts.ConnectTimeout)
	if err != nil {
		return nil, &ConnectError{Kind: ConnectRefused, Err: err}
	}

	s := &Session{
		Endpoint:  ep,
		Transport: TransportTelnet,
		state:     StateAuthenticating,
		readCh:    startReadPump(conn),
		writer:    conn,
		closer:    conn,
	}

	loginTail, err := telnetLogin(s, creds, opts.ConnectTimeout)
	if err != nil {
		s.Close()
		return nil, &ConnectError{Kind: classifyTelnetLoginError(err), Err: err}
	}

	if err := maybeEnable(s, creds, opts.ConnectTimeout, loginTail); err != nil {
		s.Close()
		return nil, &ConnectError{Kind: classifyTelnetLoginError(err), Err: err}
	}

	s.setState(StateReady)
	return s, nil
}

var (
	reUsernamePrompt = regexp.MustCompile(`(?i)(username|login):\s*$`)
	rePasswordPrompt = regexp.MustCompile(`(?i)password:\s*$`)
	reLoginRejected  = regexp.MustCompile(`(?i)(%\s*login invalid|authentication failed|access denied|bad passwords?)`)
)

// telnetLoginRejected is returned by telnetLogin/maybeEnable when the
// device itself echoed an explicit credential-rejection message, as
// opposed to readUntil simply timing out or losing the connection.
type telnetLoginRejected struct{ text string }

func (e *telnetLoginRejected) Error() string { return "telnet login rejected: " + e.text }

// classifyTelnetLoginError maps a telnetLogin/maybeEnable failure to a
// ConnectErrorKind. Only an explicit rejection message is terminal
// (auth-rejected, per spec.md §4.1/§7); a bare I/O timeout or dropped
// connection while waiting for the prompt must still allow the caller to
// fall back to the other transport, so it is classified as a transport
// failure instead.
func classifyTelnetLoginError(err error) ConnectErrorKind {
	var rejected *telnetLoginRejected
	if errors.As(err, &rejected) {
		return ConnectAuthReject
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		if execErr.Kind == ExecTimeout {
			return ConnectTimeout
		}
		return ConnectRefused
	}
	return ConnectRefused
}

// telnetLogin drives the username/password exchange for a Telnet-dialed
// device. Cisco Telnet daemons send "Username:"/"Password:" prompts before
// the CLI prompt appears. The returned string is the final output read, so
// the caller can inspect the prompt the device landed on.
func telnetLogin(s *Session, creds Credentials, timeout time.Duration) (string, error) {
	buf, err := readUntil(s, []*regexp.Regexp{reUsernamePrompt, promptMatcher}, timeout)
	if err != nil {
		return buf, err
	}
	if reUsernamePrompt.MatchString(buf) {
		if _, err := fmt.Fprintf(s.writer, "%s\r\n", creds.Username); err != nil {
			return buf, err
		}
		buf, err = readUntil(s, []*regexp.Regexp{rePasswordPrompt, promptMatcher}, timeout)
		if err != nil {
			return buf, err
		}
		if rePasswordPrompt.MatchString(buf) {
			if _, err := fmt.Fprintf(s.writer, "%s\r\n", creds.Password); err != nil {
				return buf, err
			}
			post, err := readUntil(s, []*regexp.Regexp{promptMatcher, reUsernamePrompt, reLoginRejected}, timeout)
			if err != nil {
				return post, err
			}
			if reLoginRejected.MatchString(post) || reUsernamePrompt.MatchString(post) {
				return post, &telnetLoginRejected{text: lastNBytes(post, 200)}
			}
			return post, nil
		}
	}
	return buf, nil
}

// maybeEnable supplies the enable-password if and only if the device
// presented an unprivileged prompt in postLoginOutput (§4.1).
func maybeEnable(s *Session, creds Credentials, timeout time.Duration, postLoginOutput string) error {
	if creds.EnablePassword == "" {
		return nil
	}
	if !unprivilegedPromptMatcher.MatchString(lastNBytes(postLoginOutput, 256)) {
		return nil
	}
	if _, err := fmt.Fprint(s.writer, "enable\r\n"); err != nil {
		return err
	}
	buf, err := readUntil(s, []*regexp.Regexp{rePasswordPrompt, promptMatcher}, timeout)
	if err != nil {
		return err
	}
	if rePasswordPrompt.MatchString(buf) {
		if _, err := fmt.Fprintf(s.writer, "%s\r\n", creds.EnablePassword); err != nil {
			return err
		}
		if _, err := readUntil(s, []*regexp.Regexp{promptMatcher}, timeout); err != nil {
			return err
		}
	}
	return nil
}

// drainUntilPrompt reads until a CLI prompt is seen, used right after
// connecting to absorb the MOTD/banner before the first command. Returns
// what was read so the caller can inspect the prompt's privilege level.
func drainUntilPrompt(s *Session, timeout time.Duration) (string, error) {
	return readUntil(s, []*regexp.Regexp{promptMatcher}, timeout)
}

// readUntil accumulates pump output until any pattern matches the buffer
// tail, or timeout elapses. The pump goroutine owns the blocking Read, so
// the timeout here is a hard bound even against a peer that accepts the
// connection and then goes silent.
func readUntil(s *Session, patterns []*regexp.Regexp, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var buf strings.Builder

	for {
		select {
		case chunk, ok := <-s.readCh:
			if !ok {
				return buf.String(), &ExecError{Kind: ExecEOF, Err: io.EOF}
			}
			if chunk.err != nil {
				if chunk.err == io.EOF {
					return buf.String(), &ExecError{Kind: ExecEOF, Err: chunk.err}
				}
				return buf.String(), &ExecError{Kind: ExecPromptLost, Err: chunk.err}
			}
			buf.Write(chunk.data)
			tail := lastNBytes(buf.String(), 2048)
			for _, p := range patterns {
				if p.MatchString(tail) {
					return buf.String(), nil
				}
			}
		case <-timer.C:
			return buf.String(), &ExecError{Kind: ExecTimeout, Err: fmt.Errorf("timed out waiting for prompt")}
		}
	}
}

func lastNBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Execute sends a single CLI line and returns the response up to the next
// prompt. terminal length 0 is disabled once per session, idempotently
// (spec.md §4.1, §9 open question 2: never re-sent after a command error).
func (m *Manager) Execute(ctx context.Context, s *Session, command string, readTimeout time.Duration) (string, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return "", &ExecError{Kind: ExecPromptLost, Err: fmt.Errorf("session not ready (state=%v)", s.state)}
	}
	s.state = StateInCommand
	s.mu.Unlock()

	if !s.paginationSet {
		if _, err := fmt.Fprint(s.writer, "terminal length 0\r\n"); err != nil {
			s.markBroken()
			return "", &ExecError{Kind: ExecPromptLost, Err: err}
		}
		// Best effort: ignore the echoed response, just resync to a prompt.
		_, _ = readUntil(s, []*regexp.Regexp{promptMatcher}, readTimeout)
		s.paginationSet = true
	}

	if _, err := fmt.Fprintf(s.writer, "%s\r\n", command); err != nil {
		s.markBroken()
		return "", &ExecError{Kind: ExecPromptLost, Err: err}
	}

	out, err := readUntil(s, []*regexp.Regexp{promptMatcher}, readTimeout)
	if err != nil {
		var execErr *ExecError
		if errors.As(err, &execErr) {
			s.markBroken()
			return out, execErr
		}
		s.markBroken()
		return out, &ExecError{Kind: ExecPromptLost, Err: err}
	}

	s.setState(StateReady)
	return stripEchoedCommand(out, command), nil
}

// stripEchoedCommand removes the first line of out if it is the device's
// echo of the command just sent (interactive terminals echo input).
func stripEchoedCommand(out, command string) string {
	lines := strings.SplitN(out, "\n", 2)
	if len(lines) == 2 && strings.TrimSpace(lines[0]) == strings.TrimSpace(command) {
		return lines[1]
	}
	return out
}

func (s *Session) markBroken() {
	s.setState(StateBroken)
}

// Close sends "exit" then "logout", ignoring errors from either, and frees
// the underlying transport. Safe to call on an already-broken session.
func (m *Manager) Close(s *Session) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()

	if s.writer != nil {
		_, _ = fmt.Fprint(s.writer, "exit\r\n")
		_, _ = fmt.Fprint(s.writer, "logout\r\n")
	}
	s.Close()
	s.setState(StateClosed)
	m.trackClose(s)
}

// Close releases the Session's transport resources directly, without the
// exit/logout handshake. Exported so Session satisfies a plain closer and
// so Manager.Close can reuse it.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// CloseAll iterates every live session known to the manager and closes it,
// honoring a bounded total deadline (default 30s per §4.1). Sessions still
// alive after the deadline are abandoned and ForceCleanupCount increments.
func (m *Manager) CloseAll(deadline time.Duration) {
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	m.mu.Lock()
	toClose := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		toClose = append(toClose, s)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, s := range toClose {
			m.Close(s)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		m.mu.Lock()
		abandoned := len(m.sessions)
		m.ForceCleanupCount += abandoned
		m.mu.Unlock()
	}
}
