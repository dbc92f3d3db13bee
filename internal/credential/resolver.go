package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eamarucci/bot-answer/internal/providers"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoCredentials is returned when every layer of the hierarchy is empty.
	ErrNoCredentials = errors.New("credential: no credentials configured")

	errLayerEmpty = errors.New("credential: layer empty")
)

// DefaultOAuthModels are used when an admin has not picked a model for a grant.
var DefaultOAuthModels = map[providers.ID]string{
	providers.Anthropic: "claude-sonnet-4-20250514",
	providers.OpenAI:    "gpt-4o",
}

// Decrypter opens stored secrets.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// FallbackKeys is the server-wide shared key record.
type FallbackKeys struct {
	Text   string
	Vision string
}

// FallbackSource loads the server-wide fallback record.
type FallbackSource interface {
	FallbackKeys(ctx context.Context) (FallbackKeys, error)
}

// Options tune a Resolver.
type Options struct {
	EnvFallbackKey     string
	VisionMarkers      []string
	OAuthDefaultModels map[providers.ID]string
	Now                func() time.Time
}

// Resolver walks the credential hierarchy:
// user -> group -> admin default -> admin OAuth -> server fallback -> env fallback.
type Resolver struct {
	decrypter     Decrypter
	fallback      FallbackSource
	envKey        string
	visionMarkers []string
	oauthModels   map[providers.ID]string
	now           func() time.Time
}

// NewResolver creates a resolver. fallback may be nil.
func NewResolver(decrypter Decrypter, fallback FallbackSource, opts Options) *Resolver {
	markers := opts.VisionMarkers
	if markers == nil {
		markers = DefaultVisionMarkers
	}
	oauthModels := make(map[providers.ID]string, len(DefaultOAuthModels))
	for id, model := range DefaultOAuthModels {
		oauthModels[id] = model
	}
	for id, model := range opts.OAuthDefaultModels {
		if strings.TrimSpace(model) != "" {
			oauthModels[id] = strings.TrimSpace(model)
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		decrypter:     decrypter,
		fallback:      fallback,
		envKey:        strings.TrimSpace(opts.EnvFallbackKey),
		visionMarkers: markers,
		oauthModels:   oauthModels,
		now:           now,
	}
}

type resolveRequest struct {
	pc     PermissionContext
	vision bool
	model  string
}

type layer struct {
	name string
	run  func(ctx context.Context, req resolveRequest) (Credential, error)
}

func (r *Resolver) layers() []layer {
	return []layer{
		{name: string(SourceUser), run: r.userLayer},
		{name: string(SourceGroup), run: r.groupLayer},
		{name: string(SourceAdminDefault), run: r.adminLayer},
		{name: string(SourceAdminOAuth), run: r.oauthLayer},
		{name: string(SourceServerFallback), run: r.serverFallbackLayer},
		{name: string(SourceEnvFallback), run: r.envFallbackLayer},
	}
}

// Resolve returns the highest-priority credential available for the request.
// A layer that fails to decrypt is logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, pc PermissionContext, isVision bool, requestedModel string) (Credential, error) {
	req := resolveRequest{pc: pc, vision: isVision, model: strings.TrimSpace(requestedModel)}
	for _, l := range r.layers() {
		cred, err := l.run(ctx, req)
		if err == nil {
			log.WithFields(log.Fields{
				"source":   cred.Origin(),
				"provider": cred.Target(),
				"model":    cred.PreferredModel(),
				"vision":   isVision,
			}).Debug("credential: resolved")
			return cred, nil
		}
		if errors.Is(err, errLayerEmpty) {
			continue
		}
		log.WithError(err).WithField("layer", l.name).Warn("credential: layer skipped")
	}
	return nil, ErrNoCredentials
}

func (r *Resolver) userLayer(_ context.Context, req resolveRequest) (Credential, error) {
	u := req.pc.User
	if u == nil || u.EncryptedKey == "" {
		return nil, errLayerEmpty
	}
	key, err := r.open(u.EncryptedKey)
	if err != nil {
		return nil, err
	}
	provider, model := route(req.vision, groupRouting(req.pc.Group), adminRouting(req.pc.Admin))
	return APICredential{Key: key, Provider: provider, Model: model, Source: SourceUser}, nil
}

func (r *Resolver) groupLayer(_ context.Context, req resolveRequest) (Credential, error) {
	g := req.pc.Group
	if g == nil {
		return nil, errLayerEmpty
	}
	own := groupRouting(g)
	encrypted := g.TextAPIKey
	if req.vision && g.VisionAPIKey != "" {
		encrypted = g.VisionAPIKey
	} else if req.vision {
		own = own.textOnly()
	}
	if encrypted == "" {
		return nil, errLayerEmpty
	}
	key, err := r.open(encrypted)
	if err != nil {
		return nil, err
	}
	provider, model := route(req.vision, own, adminRouting(req.pc.Admin))
	return APICredential{Key: key, Provider: provider, Model: model, Source: SourceGroup}, nil
}

func (r *Resolver) adminLayer(_ context.Context, req resolveRequest) (Credential, error) {
	a := req.pc.Admin
	if a == nil {
		return nil, errLayerEmpty
	}
	own := adminRouting(a)
	encrypted := a.DefaultAPIKey
	if req.vision && a.DefaultVisionAPIKey != "" {
		encrypted = a.DefaultVisionAPIKey
	} else if req.vision {
		own = own.textOnly()
	}
	if encrypted == "" {
		return nil, errLayerEmpty
	}
	key, err := r.open(encrypted)
	if err != nil {
		return nil, err
	}
	provider, model := route(req.vision, own)
	return APICredential{Key: key, Provider: provider, Model: model, Source: SourceAdminDefault}, nil
}

func (r *Resolver) oauthLayer(_ context.Context, req resolveRequest) (Credential, error) {
	a := req.pc.Admin
	if a == nil || len(a.OAuth) == 0 {
		return nil, errLayerEmpty
	}
	now := r.now()
	intent := ClassifyModel(req.model, r.visionMarkers)

	anthropic, hasAnthropic := a.OAuth[providers.Anthropic]
	openai, hasOpenAI := a.OAuth[providers.OpenAI]
	switch {
	case hasAnthropic && anthropic.Usable(now) &&
		(intent.WantsAnthropic || (!intent.WantsOpenAI && intent.NoModel)):
		return r.oauthCredential(a.ID, providers.Anthropic, anthropic), nil
	case hasOpenAI && openai.Usable(now) &&
		(intent.WantsOpenAI || (!intent.WantsAnthropic && intent.NoModel)):
		return r.oauthCredential(a.ID, providers.OpenAI, openai), nil
	default:
		return nil, errLayerEmpty
	}
}

func (r *Resolver) oauthCredential(adminID uint64, provider providers.ID, grant OAuthGrant) OAuthCredential {
	model := strings.TrimSpace(grant.Model)
	if model == "" {
		model = r.oauthModels[provider]
	}
	return OAuthCredential{
		PrincipalID:   adminID,
		OAuthProvider: provider,
		Provider:      provider,
		Model:         model,
		Source:        SourceAdminOAuth,
	}
}

func (r *Resolver) serverFallbackLayer(ctx context.Context, req resolveRequest) (Credential, error) {
	if r.fallback == nil {
		return nil, errLayerEmpty
	}
	keys, err := r.fallback.FallbackKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential: load fallback keys: %w", err)
	}
	stored := keys.Text
	if req.vision && keys.Vision != "" {
		stored = keys.Vision
	}
	if stored == "" {
		return nil, errLayerEmpty
	}
	key, errOpen := r.open(stored)
	if errOpen != nil {
		// Rows written before keys were encrypted hold plaintext.
		key = stored
	}
	return APICredential{Key: key, Provider: providers.Fallback, Source: SourceServerFallback}, nil
}

func (r *Resolver) envFallbackLayer(_ context.Context, _ resolveRequest) (Credential, error) {
	if r.envKey == "" {
		return nil, errLayerEmpty
	}
	return APICredential{Key: r.envKey, Provider: providers.Fallback, Source: SourceEnvFallback}, nil
}

func (r *Resolver) open(ciphertext string) (string, error) {
	if r.decrypter == nil {
		return "", fmt.Errorf("credential: decrypt: no decrypter configured")
	}
	plain, err := r.decrypter.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("credential: decrypt: %w", err)
	}
	return plain, nil
}

// routing is one level's provider/model preferences, empty meaning unset.
type routing struct {
	textProvider   string
	textModel      string
	visionProvider string
	visionModel    string
}

func groupRouting(g *GroupConfig) routing {
	if g == nil {
		return routing{}
	}
	textModel := strings.TrimSpace(g.TextModel)
	if strings.EqualFold(textModel, AutoModel) {
		textModel = ""
	}
	return routing{
		textProvider:   strings.TrimSpace(g.TextProvider),
		textModel:      textModel,
		visionProvider: strings.TrimSpace(g.VisionProvider),
		visionModel:    strings.TrimSpace(g.VisionModel),
	}
}

func adminRouting(a *AdminConfig) routing {
	if a == nil {
		return routing{}
	}
	return routing{
		textProvider:   strings.TrimSpace(a.DefaultProvider),
		textModel:      strings.TrimSpace(a.DefaultModel),
		visionProvider: strings.TrimSpace(a.DefaultVisionProvider),
		visionModel:    strings.TrimSpace(a.DefaultVisionModel),
	}
}

// textOnly drops vision preferences that belong to a different provider than
// the text key being reused for a vision request.
func (r routing) textOnly() routing {
	if r.visionProvider == "" || r.textProvider == "" ||
		providers.Normalize(r.visionProvider) == providers.Normalize(r.textProvider) {
		return r
	}
	return routing{textProvider: r.textProvider, textModel: r.textModel}
}

func route(vision bool, levels ...routing) (providers.ID, string) {
	var provider, model string
	for _, l := range levels {
		if vision {
			provider = coalesce(provider, l.visionProvider, l.textProvider)
			model = coalesce(model, l.visionModel, l.textModel)
		} else {
			provider = coalesce(provider, l.textProvider)
			model = coalesce(model, l.textModel)
		}
	}
	if provider == "" {
		return providers.Fallback, model
	}
	return providers.Normalize(provider), model
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
