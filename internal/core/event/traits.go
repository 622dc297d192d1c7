package event

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Traits carries the union of page context, event properties and user
// attributes for one event.
//
// The wire format deliberately duplicates data: the nested blocks ("context",
// "properties", "user") are the source of truth, and the same fields are also
// spread flat at the top level for older readers that expect flat columns.
// Spread order is context, then properties, then user, so user fields win on
// key collision. Both representations are always derived from the same data;
// they are never independently settable.
type Traits struct {
	Context    PageContext
	Properties map[string]interface{}
	User       UserTraits

	// AnonymousID is the server-resolved anonymous id for this event,
	// recorded even when identity resolution picked a stronger signal.
	AnonymousID string

	// HasConsent records the per-request consent signal. It gates how the
	// event record is persisted, not whether functional effects run.
	HasConsent bool

	// Extra holds forward-compatible passthrough attributes that do not map
	// to any known block.
	Extra map[string]interface{}
}

// PageContext is the shared web metadata attached to browser events.
type PageContext struct {
	URL       string
	Path      string
	Title     string
	Referrer  string
	UserAgent string
	Locale    string
	Page      *PageInfo

	// Extra preserves unrecognized context keys (campaign, ip, ...).
	Extra map[string]interface{}
}

// PageInfo is the standard page object sent by the pixel.
type PageInfo struct {
	Path     string `json:"path,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	Search   string `json:"search,omitempty"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
}

// UserTraits are the identity attributes a client may attach to an event.
type UserTraits struct {
	Email     string `json:"email,omitempty"`
	ID        string `json:"id,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status,omitempty"`
}

const (
	keyContext     = "context"
	keyProperties  = "properties"
	keyUser        = "user"
	keyAnonymousID = "anonymousId"
	keyHasConsent  = "hasConsent"
)

func (c PageContext) toMap() map[string]interface{} {
	m := make(map[string]interface{})
	for k, v := range c.Extra {
		m[k] = v
	}
	if c.URL != "" {
		m["url"] = c.URL
	}
	if c.Path != "" {
		m["path"] = c.Path
	}
	if c.Title != "" {
		m["title"] = c.Title
	}
	if c.Referrer != "" {
		m["referrer"] = c.Referrer
	}
	if c.UserAgent != "" {
		m["userAgent"] = c.UserAgent
	}
	if c.Locale != "" {
		m["locale"] = c.Locale
	}
	if c.Page != nil {
		m["page"] = pageInfoToMap(c.Page)
	}
	return m
}

func pageInfoToMap(p *PageInfo) map[string]interface{} {
	raw, _ := json.Marshal(p)
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return m
}

// ContextFromMap builds a PageContext from a free-form context block,
// preserving unrecognized keys as passthrough.
func ContextFromMap(m map[string]interface{}) PageContext {
	return contextFromMap(m)
}

func contextFromMap(m map[string]interface{}) PageContext {
	var c PageContext
	for k, v := range m {
		switch k {
		case "url":
			c.URL, _ = v.(string)
		case "path":
			c.Path, _ = v.(string)
		case "title":
			c.Title, _ = v.(string)
		case "referrer":
			c.Referrer, _ = v.(string)
		case "userAgent":
			c.UserAgent, _ = v.(string)
		case "locale":
			c.Locale, _ = v.(string)
		case "page":
			raw, err := json.Marshal(v)
			if err == nil {
				var p PageInfo
				if json.Unmarshal(raw, &p) == nil {
					c.Page = &p
				}
			}
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]interface{})
			}
			c.Extra[k] = v
		}
	}
	return c
}

func (u UserTraits) toMap() map[string]interface{} {
	m := make(map[string]interface{})
	if u.Email != "" {
		m["email"] = u.Email
	}
	if u.ID != "" {
		m["id"] = u.ID
	}
	if u.ProfileID != "" {
		m["profile_id"] = u.ProfileID
	}
	if u.Name != "" {
		m["name"] = u.Name
	}
	if u.Status != "" {
		m["status"] = u.Status
	}
	return m
}

// Flatten returns the flat projection of the traits: context fields, then
// properties, then user fields, with later blocks overriding earlier ones.
func (t Traits) Flatten() map[string]interface{} {
	flat := make(map[string]interface{})
	for k, v := range t.Context.toMap() {
		flat[k] = v
	}
	for k, v := range t.Properties {
		flat[k] = v
	}
	for k, v := range t.User.toMap() {
		flat[k] = v
	}
	flat[keyAnonymousID] = t.AnonymousID
	return flat
}

// MarshalJSON emits the nested blocks plus the flattened spread.
func (t Traits) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{})

	// Flattened spread first so reserved keys cannot be clobbered.
	for k, v := range t.Flatten() {
		out[k] = v
	}
	for k, v := range t.Extra {
		if _, reserved := out[k]; !reserved {
			out[k] = v
		}
	}

	out[keyContext] = t.Context.toMap()
	out[keyProperties] = t.propertiesOrEmpty()
	out[keyUser] = t.User.toMap()
	out[keyAnonymousID] = t.AnonymousID
	out[keyHasConsent] = t.HasConsent

	return json.Marshal(out)
}

func (t Traits) propertiesOrEmpty() map[string]interface{} {
	if t.Properties == nil {
		return map[string]interface{}{}
	}
	return t.Properties
}

// UnmarshalJSON restores the traits from the nested blocks. Top-level keys
// that merely duplicate the flattened projection are discarded; anything else
// is kept as passthrough in Extra.
func (t *Traits) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if ctx, ok := raw[keyContext].(map[string]interface{}); ok {
		t.Context = contextFromMap(ctx)
	}
	if props, ok := raw[keyProperties].(map[string]interface{}); ok && len(props) > 0 {
		t.Properties = props
	} else {
		t.Properties = nil
	}
	if user, ok := raw[keyUser].(map[string]interface{}); ok {
		userRaw, err := json.Marshal(user)
		if err == nil {
			_ = json.Unmarshal(userRaw, &t.User)
		}
	}
	if anon, ok := raw[keyAnonymousID].(string); ok {
		t.AnonymousID = anon
	}
	if consent, ok := raw[keyHasConsent].(bool); ok {
		t.HasConsent = consent
	}

	flat := t.Flatten()
	t.Extra = nil
	for k, v := range raw {
		switch k {
		case keyContext, keyProperties, keyUser, keyAnonymousID, keyHasConsent:
			continue
		}
		if fv, ok := flat[k]; ok && reflect.DeepEqual(fv, v) {
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]interface{})
		}
		t.Extra[k] = v
	}
	return nil
}

// lookup searches properties first, then passthrough extras, for a string
// attribute.
func (t Traits) lookup(key string) string {
	if v, ok := t.Properties[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if v, ok := t.Extra[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// LikeTraits is the typed variant for post.liked/post.unliked and the
// snippet engagement family.
type LikeTraits struct {
	PostID    string
	PostSlug  string
	PostTitle string
	Path      string
}

// Like extracts the like variant. post_id is required.
func (t Traits) Like() (LikeTraits, error) {
	lt := LikeTraits{
		PostID:    t.lookup("post_id"),
		PostSlug:  t.lookup("post_slug"),
		PostTitle: t.lookup("post_title"),
		Path:      t.Context.Path,
	}
	if lt.PostID == "" {
		return LikeTraits{}, fmt.Errorf("post_id required in properties")
	}
	return lt, nil
}

// CommentTraits is the typed variant for the comment.* family.
type CommentTraits struct {
	PostID          string
	CommentID       string
	ParentCommentID string
	Content         string
}

// Comment extracts the comment variant for the given event type, validating
// the fields that type requires.
func (t Traits) Comment(eventType string) (CommentTraits, error) {
	ct := CommentTraits{
		PostID:          t.lookup("post_id"),
		CommentID:       t.lookup("comment_id"),
		ParentCommentID: t.lookup("parent_comment_id"),
		Content:         t.lookup("content"),
	}
	switch eventType {
	case TypeCommentCreated:
		if ct.PostID == "" || ct.Content == "" {
			return CommentTraits{}, fmt.Errorf("missing required fields for %s: post_id, content", eventType)
		}
	case TypeCommentUpdated:
		if ct.CommentID == "" || ct.Content == "" {
			return CommentTraits{}, fmt.Errorf("missing required fields for %s: comment_id, content", eventType)
		}
	case TypeCommentDeleted:
		if ct.CommentID == "" {
			return CommentTraits{}, fmt.Errorf("missing required fields for %s: comment_id", eventType)
		}
	default:
		return CommentTraits{}, fmt.Errorf("not a comment event type: %s", eventType)
	}
	return ct, nil
}

// SubscriptionTraits is the typed variant for newsletter/member events.
type SubscriptionTraits struct {
	Email  string
	Name   string
	Status string
}

// Subscription extracts the subscription variant. Email is required.
func (t Traits) Subscription() (SubscriptionTraits, error) {
	st := SubscriptionTraits{
		Email:  t.User.Email,
		Name:   t.User.Name,
		Status: t.User.Status,
	}
	if st.Email == "" {
		st.Email = t.lookup("email")
	}
	if st.Name == "" {
		st.Name = t.lookup("name")
	}
	if st.Status == "" {
		st.Status = t.lookup("status")
	}
	if st.Email == "" {
		return SubscriptionTraits{}, fmt.Errorf("email required for subscription events")
	}
	return st, nil
}

// ContactTraits is the typed variant for contact.submitted.
type ContactTraits struct {
	Email   string
	Name    string
	Subject string
	Message string
}

// Contact extracts the contact-form variant. Email and message are required.
func (t Traits) Contact() (ContactTraits, error) {
	ct := ContactTraits{
		Email:   t.User.Email,
		Name:    t.User.Name,
		Subject: t.lookup("subject"),
		Message: t.lookup("message"),
	}
	if ct.Email == "" {
		ct.Email = t.lookup("email")
	}
	if ct.Name == "" {
		ct.Name = t.lookup("name")
	}
	if ct.Email == "" || ct.Message == "" {
		return ContactTraits{}, fmt.Errorf("missing required fields for contact.submitted: email, message")
	}
	return ct, nil
}

// EmailTraits is the typed variant for email-delivery (resend) events.
type EmailTraits struct {
	Email         string
	Subject       string
	EmailID       string
	URL           string
	BounceType    string
	BounceMessage string
	ContactID     string
	AudienceID    string
	FirstName     string
	LastName      string
	Unsubscribed  bool
}

// Email extracts the email-delivery variant. The recipient email is required.
func (t Traits) Email() (EmailTraits, error) {
	et := EmailTraits{
		Email:         t.lookup("email"),
		Subject:       t.lookup("subject"),
		EmailID:       t.lookup("email_id"),
		URL:           t.lookup("url"),
		BounceType:    t.lookup("bounce_type"),
		BounceMessage: t.lookup("bounce_message"),
		ContactID:     t.lookup("contact_id"),
		AudienceID:    t.lookup("audience_id"),
		FirstName:     t.lookup("first_name"),
		LastName:      t.lookup("last_name"),
	}
	if v, ok := t.Properties["unsubscribed"].(bool); ok {
		et.Unsubscribed = v
	}
	if et.Email == "" {
		et.Email = t.User.Email
	}
	if et.Email == "" {
		return EmailTraits{}, fmt.Errorf("email required for email-delivery events")
	}
	return et, nil
}
