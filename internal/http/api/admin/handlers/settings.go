package handlers

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"slices"
	"strings"

	internalsettings "github.com/eamarucci/bot-answer/internal/settings"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	errPositiveInt    = errors.New("value must be a positive integer")
	errNonNegativeInt = errors.New("value must be a non-negative integer")
	errBoolean        = errors.New("value must be a boolean")
	errString         = errors.New("value must be a string")
)

// settingSpec describes one runtime setting the console may change.
type settingSpec struct {
	def      any
	secret   bool
	validate func(json.RawMessage) error
}

func positiveInt(raw json.RawMessage) error {
	if v, ok := internalsettings.ParseNonNegativeInt(raw); !ok || v == 0 {
		return errPositiveInt
	}
	return nil
}

func nonNegativeInt(raw json.RawMessage) error {
	if _, ok := internalsettings.ParseNonNegativeInt(raw); !ok {
		return errNonNegativeInt
	}
	return nil
}

func boolean(raw json.RawMessage) error {
	if _, ok := internalsettings.ParseBool(raw); !ok {
		return errBoolean
	}
	return nil
}

func text(raw json.RawMessage) error {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return errString
	}
	return nil
}

var knownSettings = map[string]settingSpec{
	internalsettings.RateLimitKey:              {def: internalsettings.DefaultRateLimit, validate: nonNegativeInt},
	internalsettings.RateLimitWindowSecondsKey: {def: internalsettings.DefaultRateLimitWindowSeconds, validate: positiveInt},
	internalsettings.RateLimitRedisEnabledKey:  {def: internalsettings.DefaultRateLimitRedisEnabled, validate: boolean},
	internalsettings.RateLimitRedisAddrKey:     {def: "", validate: text},
	internalsettings.RateLimitRedisPasswordKey: {def: "", secret: true, validate: text},
	internalsettings.RateLimitRedisDBKey:       {def: 0, validate: nonNegativeInt},
	internalsettings.RateLimitRedisPrefixKey:   {def: internalsettings.DefaultRateLimitRedisPrefix, validate: text},
	internalsettings.ModelCatalogTTLSecondsKey: {def: internalsettings.DefaultModelCatalogTTLSeconds, validate: positiveInt},
}

// SettingHandler exposes the runtime settings. Only known keys are accepted;
// deleting a key restores its default.
type SettingHandler struct {
	db *gorm.DB
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// List returns every known setting with its effective value.
func (h *SettingHandler) List(c *gin.Context) {
	out := make([]gin.H, 0, len(knownSettings))
	for _, key := range sortedSettingKeys() {
		out = append(out, formatSetting(key, knownSettings[key]))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns one setting.
func (h *SettingHandler) Get(c *gin.Context) {
	key, spec, ok := lookupSetting(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatSetting(key, spec))
}

// Update validates and stores a value.
func (h *SettingHandler) Update(c *gin.Context) {
	key, spec, ok := lookupSetting(c)
	if !ok {
		return
	}
	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := spec.validate(body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}
	if errPut := internalsettings.Put(c.Request.Context(), h.db, key, body.Value); errPut != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, formatSetting(key, spec))
}

// Delete restores the default of a setting.
func (h *SettingHandler) Delete(c *gin.Context) {
	key, spec, ok := lookupSetting(c)
	if !ok {
		return
	}
	if _, errDelete := internalsettings.Delete(c.Request.Context(), h.db, key); errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, formatSetting(key, spec))
}

func lookupSetting(c *gin.Context) (string, settingSpec, bool) {
	key := strings.ToUpper(strings.TrimSpace(c.Param("key")))
	spec, ok := knownSettings[key]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
		return "", settingSpec{}, false
	}
	return key, spec, true
}

func sortedSettingKeys() []string {
	return slices.Sorted(maps.Keys(knownSettings))
}

// formatSetting reports the snapshot value, or the default when unset.
// Secret values are replaced by a has_value flag.
func formatSetting(key string, spec settingSpec) gin.H {
	raw, stored := internalsettings.DBConfigValue(key)
	out := gin.H{"key": key, "source": "default"}
	if stored {
		out["source"] = "db"
	}
	if spec.secret {
		has := stored && strings.TrimSpace(string(raw)) != `""`
		out["has_value"] = has
		return out
	}
	if stored {
		out["value"] = raw
	} else {
		out["value"] = spec.def
	}
	return out
}
