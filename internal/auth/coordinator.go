package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/metrics"
	"github.com/hitoshi/smartpaw/internal/model"
	"github.com/hitoshi/smartpaw/internal/session"
	"github.com/hitoshi/smartpaw/internal/validation"
)

// 成功時に利用者へ表示する通知。
const (
	NoticeSignedUp       = "Account created successfully! Welcome to SmartPaw."
	NoticeConfirmEmail   = "Please check your email to confirm your account before signing in."
	NoticeSignedIn       = "Welcome back!"
	NoticeSignedOut      = "You have been signed out."
	NoticeAccountDeleted = "Your account has been deleted."
)

// レート制限キーの接頭辞。サインアップとサインインは別々に数える。
const (
	rateLimitKeySignUpPrefix = "signup-"
	rateLimitKeySignInPrefix = "signin-"
)

// Limiter は試行回数の制限を判定する。
// ratelimit.Limiterが実装する。
type Limiter interface {
	IsAllowed(ctx context.Context, key string) bool
}

// ProfileChecker は事業者プロフィールの入力状況を返す。
// listing.Serviceが実装する。
type ProfileChecker interface {
	IsProfileComplete(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Result はコーディネーターが処理したアクションの結果。
// Redirectが空の場合は遷移しない。
// Sessionはこのアクションで確立したセッションで、メール確認待ちやサインアウトではnil。
type Result struct {
	Redirect string
	Notice   string
	Session  *model.Session
	Snapshot session.Snapshot
}

// Coordinator は認証アクションを決まった順序で実行する。
//
// 1つのアクションは「多重実行の防止 → レート制限 → サニタイズと検証 → アクション →
// Storeへのイベント反映 → 遷移先の決定」の順に進む。
// 同じブラウザセッションで実行中のアクションがある間、新しいアクションは拒否する。
type Coordinator struct {
	actions  *Service
	limiter  Limiter
	profiles ProfileChecker
	metrics  metrics.MetricsCollector

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewCoordinator はCoordinatorを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewCoordinator(actions *Service, limiter Limiter, profiles ProfileChecker, collector metrics.MetricsCollector) *Coordinator {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Coordinator{
		actions:  actions,
		limiter:  limiter,
		profiles: profiles,
		metrics:  collector,
		inFlight: make(map[string]struct{}),
	}
}

// begin はブラウザセッション単位の実行権を取得する。
// 戻り値の関数で解放する。
func (c *Coordinator) begin(store *session.Store) (func(), error) {
	key := store.ID()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inFlight[key]; busy {
		return nil, model.NewActionInProgressError()
	}
	c.inFlight[key] = struct{}{}

	return func() {
		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
	}, nil
}

// observe はアクションの結果とレイテンシを記録する。
func (c *Coordinator) observe(action Action, start time.Time, err error) {
	outcome := string(OutcomeSuccess)
	if err != nil {
		outcome = string(OutcomeFailure)
	}
	c.metrics.RecordAuthAction(string(action), outcome)
	c.metrics.RecordActionLatency(string(action), time.Since(start))
}

// SignUp はサインアップを実行する。
func (c *Coordinator) SignUp(ctx context.Context, store *session.Store, input validation.UserInput) (res *Result, err error) {
	release, err := c.begin(store)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	defer func() { c.observe(ActionSignUp, start, err) }()

	if !c.limiter.IsAllowed(ctx, rateLimitKey(rateLimitKeySignUpPrefix, input.Email)) {
		c.metrics.RecordRateLimited(string(ActionSignUp))
		return nil, model.NewRateLimitedError()
	}

	input = sanitizeUserInput(input)
	if v := validation.ValidateUserData(input); !v.IsValid {
		return nil, model.NewValidationError(v.Errors...)
	}

	metadata := model.UserMetadata{
		FullName: input.FullName,
		UserType: input.UserType,
	}
	if input.UserType == model.UserTypeServiceProvider {
		metadata.BusinessName = input.BusinessName
	}

	result, err := c.actions.SignUp(ctx, input.Email, input.Password, metadata)
	if err != nil {
		return nil, err
	}

	if result.Session == nil {
		slog.Info("sign-up pending email confirmation",
			slog.String("email", input.Email),
		)
		return &Result{
			Redirect: Decide(Decision{Action: ActionSignUp, Outcome: OutcomeConfirmationPending, UserType: input.UserType}),
			Notice:   NoticeConfirmEmail,
			Snapshot: store.Snapshot(),
		}, nil
	}

	snap := store.Apply(session.Event{Type: session.EventSignedIn, Session: result.Session})
	slog.Info("user signed up",
		slog.String("user_id", result.Session.User.ID.String()),
		slog.String("user_type", string(input.UserType)),
	)

	return &Result{
		Redirect: Decide(Decision{Action: ActionSignUp, Outcome: OutcomeSuccess, UserType: input.UserType}),
		Notice:   NoticeSignedUp,
		Session:  result.Session,
		Snapshot: snap,
	}, nil
}

// SignIn はメールアドレスとパスワードでサインインする。
func (c *Coordinator) SignIn(ctx context.Context, store *session.Store, email, password string) (res *Result, err error) {
	release, err := c.begin(store)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	defer func() { c.observe(ActionSignIn, start, err) }()

	if !c.limiter.IsAllowed(ctx, rateLimitKey(rateLimitKeySignInPrefix, email)) {
		c.metrics.RecordRateLimited(string(ActionSignIn))
		return nil, model.NewRateLimitedError()
	}

	email = strings.TrimSpace(email)
	if email != "" && !validation.ValidateEmail(email) {
		return nil, model.NewValidationError("Please enter a valid email address")
	}

	sess, err := c.actions.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	return c.signedIn(ctx, store, ActionSignIn, sess), nil
}

// StartGoogle はGoogleサインインを開始する。
func (c *Coordinator) StartGoogle(redirectTo string) OAuthStart {
	return c.actions.SignInWithGoogle(redirectTo)
}

// CompleteGoogle はGoogleサインインのコールバックを処理する。
func (c *Coordinator) CompleteGoogle(ctx context.Context, store *session.Store, code, verifier string) (res *Result, err error) {
	release, err := c.begin(store)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	defer func() { c.observe(ActionOAuth, start, err) }()

	sess, err := c.actions.CompleteOAuth(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	return c.signedIn(ctx, store, ActionOAuth, sess), nil
}

// signedIn はサインイン成功後のイベント反映と遷移先の決定を行う。
func (c *Coordinator) signedIn(ctx context.Context, store *session.Store, action Action, sess *model.Session) *Result {
	snap := store.Apply(session.Event{Type: session.EventSignedIn, Session: sess})

	userType := sess.User.Metadata.UserType
	complete := false
	if userType == model.UserTypeServiceProvider && c.profiles != nil {
		ok, err := c.profiles.IsProfileComplete(ctx, sess.User.ID)
		if err != nil {
			slog.Warn("failed to look up provider profile",
				slog.String("user_id", sess.User.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		complete = ok
	}

	slog.Info("user signed in",
		slog.String("user_id", sess.User.ID.String()),
		slog.String("action", string(action)),
		slog.Bool("profile_complete", complete),
	)

	return &Result{
		Redirect: Decide(Decision{Action: action, Outcome: OutcomeSuccess, UserType: userType, ProfileComplete: complete}),
		Notice:   NoticeSignedIn,
		Session:  sess,
		Snapshot: snap,
	}
}

// SignOut はサインアウトする。
// プロバイダーの結果に関わらずStoreは未認証になり、ログインページに遷移する。
func (c *Coordinator) SignOut(ctx context.Context, store *session.Store) *Result {
	start := time.Now()

	err := c.actions.SignOut(ctx, store.Snapshot().Session)
	if err != nil {
		slog.Warn("provider sign-out failed",
			slog.String("error", err.Error()),
		)
	}
	c.observe(ActionSignOut, start, err)

	snap := store.Apply(session.Event{Type: session.EventSignedOut})
	return &Result{
		Redirect: Decide(Decision{Action: ActionSignOut}),
		Notice:   NoticeSignedOut,
		Snapshot: snap,
	}
}

// DeleteAccount は現在のユーザーのアカウントを削除する。
func (c *Coordinator) DeleteAccount(ctx context.Context, store *session.Store) (res *Result, err error) {
	release, err := c.begin(store)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	defer func() { c.observe(ActionDeleteAccount, start, err) }()

	current := store.Snapshot()
	if !current.Authenticated() {
		return nil, model.NewUnauthorizedError()
	}

	if err := c.actions.DeleteAccount(ctx, current.Session); err != nil {
		return nil, err
	}

	slog.Info("account deleted",
		slog.String("user_id", current.User.ID.String()),
	)

	snap := store.Apply(session.Event{Type: session.EventUserDeleted})
	return &Result{
		Redirect: Decide(Decision{Action: ActionDeleteAccount, Outcome: OutcomeSuccess}),
		Notice:   NoticeAccountDeleted,
		Snapshot: snap,
	}, nil
}

// sanitizeUserInput はパスワード以外の入力をサニタイズする。
func sanitizeUserInput(in validation.UserInput) validation.UserInput {
	in.FullName = validation.SanitizeInput(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.BusinessName = validation.SanitizeInput(in.BusinessName)
	return in
}

func rateLimitKey(prefix, email string) string {
	return prefix + strings.ToLower(strings.TrimSpace(email))
}
