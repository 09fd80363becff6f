// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/oauthhub/authhub/client"
	"github.com/oauthhub/authhub/crypto"
	"github.com/oauthhub/authhub/grant"
)

// Named redirect targets for the authorization endpoint's consent state
// machine, matching OauthorizeView in the original source rather than
// spec.md's generic "consent UI URI" / "login URI" language.
const (
	authorizeLoginURI   = "/authhub/oauth/authorize/login"
	authorizeConsentURI = "/authhub/oauth/authorize/confirm"
	authorizeErrorURI   = "/authhub/oauth/authorize/error"
)

func qstr(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// responseTypeKinds classifies a space-delimited response_type value
// into the three component grants spec.md §3 names ("code", "token",
// and the OIDC "id_token" addition), so handleAuthorize can dispatch
// to the matching state machine instead of always issuing a code.
func responseTypeKinds(responseType string) (code, token, idToken bool) {
	for _, part := range strings.Fields(responseType) {
		switch part {
		case "code":
			code = true
		case "token":
			token = true
		case "id_token":
			idToken = true
		}
	}
	return
}

// handleAuthorize implements the consent state machine of spec.md §4.6:
// validate_request → authenticated? → consented? → issue_code/token,
// dispatching on response_type to the authorization_code, implicit, or
// hybrid state machine (spec.md §3's six grant types).
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := decodeQueryLiteral(r)
	clientID := qstr(q, "client_id")
	redirectURI := qstr(q, "redirect_uri")
	responseType := qstr(q, "response_type")
	scope := qstr(q, "scope")
	state := qstr(q, "state")
	nonce := qstr(q, "nonce")
	codeChallenge := qstr(q, "code_challenge")
	codeChallengeMethod := qstr(q, "code_challenge_method")

	c, err := s.clients.GetByClientID(r.Context(), clientID)
	if err != nil || !c.ValidateRedirectURI(redirectURI) || !containsResponseType(c, responseType) {
		http.Redirect(w, r, authorizeErrorURI, http.StatusFound)
		return
	}

	wantCode, wantToken, wantIDToken := responseTypeKinds(responseType)
	if !wantCode && !wantToken && !wantIDToken {
		writeErr(w, grant.ErrUnsupportedRequest)
		return
	}

	username, isAdmin, err := s.resolveSession(r)
	if err != nil || isAdmin {
		s.redirectToContinuation(w, r, authorizeLoginURI)
		return
	}

	decision, err := s.engine.Consent(r.Context(), c, username, scope)
	if err != nil {
		writeErr(w, err)
		return
	}
	if decision == grant.DecisionRedirectConsent {
		s.redirectToContinuation(w, r, authorizeConsentURI)
		return
	}

	req := grant.AuthorizationRequest{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               scope,
		Username:            username,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		Nonce:               nonce,
	}

	switch {
	case wantCode && !wantToken && !wantIDToken:
		code, err := s.engine.IssueCode(r.Context(), req)
		if err != nil {
			writeErr(w, err)
			return
		}
		dest, _ := url.Parse(redirectURI)
		values := dest.Query()
		values.Set("code", code.Code)
		if state != "" {
			values.Set("state", state)
		}
		dest.RawQuery = values.Encode()
		http.Redirect(w, r, dest.String(), http.StatusFound)

	case wantCode:
		code, tok, err := s.engine.HybridGrant(r.Context(), c, req)
		if err != nil {
			writeErr(w, err)
			return
		}
		values := tokenFragmentValues(tok, wantToken, wantIDToken, state)
		values.Set("code", code.Code)
		redirectFragment(w, r, redirectURI, values)

	default:
		tok, err := s.engine.ImplicitGrant(r.Context(), c, username, scope, nonce)
		if err != nil {
			writeErr(w, err)
			return
		}
		values := tokenFragmentValues(tok, wantToken, wantIDToken, state)
		redirectFragment(w, r, redirectURI, values)
	}
}

// tokenFragmentValues projects a Token into the fragment parameters
// implicit/hybrid responses deliver it with (RFC 6749 §4.2.2, OIDC
// Hybrid Flow).
func tokenFragmentValues(tok *grant.Token, wantToken, wantIDToken bool, state string) url.Values {
	values := url.Values{}
	if wantToken {
		values.Set("access_token", tok.AccessToken)
		values.Set("token_type", "Bearer")
		values.Set("expires_in", strconv.FormatInt(tok.ExpiresIn, 10))
		values.Set("scope", tok.Scope)
	}
	if wantIDToken {
		if idToken, ok := tok.Metadata["id_token"]; ok {
			values.Set("id_token", idToken.(string))
		}
	}
	if state != "" {
		values.Set("state", state)
	}
	return values
}

func redirectFragment(w http.ResponseWriter, r *http.Request, redirectURI string, values url.Values) {
	dest, _ := url.Parse(redirectURI)
	dest.Fragment = values.Encode()
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

func containsResponseType(c *client.Client, responseType string) bool {
	for _, rt := range c.Metadata.ResponseTypes {
		if rt == responseType {
			return true
		}
	}
	return false
}

// redirectToContinuation 302s to target, carrying the original request's
// full URI as a tamper-evident `authorization_uri` continuation parameter
// (SPEC_FULL.md §4.12). The login/consent frontend, once it has satisfied
// its step, bounces the browser through GET /oauth2/authorize/continue
// with the same pair of query parameters to resume the flow.
func (s *Server) redirectToContinuation(w http.ResponseWriter, r *http.Request, target string) {
	original := r.URL.RequestURI()
	sig := crypto.Sign(s.jwtKey, original)

	dest, _ := url.Parse(target)
	values := dest.Query()
	values.Set("authorization_uri", original)
	values.Set("continuation_sig", sig)
	dest.RawQuery = values.Encode()
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

// handleAuthorizeContinue verifies the signature minted by
// redirectToContinuation and, if valid, resumes the authorization request.
func (s *Server) handleAuthorizeContinue(w http.ResponseWriter, r *http.Request) {
	original := r.URL.Query().Get("authorization_uri")
	sig := r.URL.Query().Get("continuation_sig")
	if original == "" || !crypto.Verify(s.jwtKey, original, sig) {
		writeEnvelope(w, http.StatusUnauthorized, StateAuthError, "invalid or tampered continuation", nil)
		return
	}
	http.Redirect(w, r, original, http.StatusFound)
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// clientAuth resolves the client_secret_basic / client_secret_post /
// none authentication methods at the token endpoint (spec.md §9
// "Additional source-derived features").
func (s *Server) clientAuth(r *http.Request, req *tokenRequest) (*client.Client, bool) {
	clientID := req.ClientID
	secret := req.ClientSecret
	presented := secret != ""

	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		clientID = basicID
		secret = basicSecret
		presented = true
	}

	c, err := s.clients.GetByClientID(r.Context(), clientID)
	if err != nil {
		return nil, false
	}
	return c, s.engine.AuthenticateClient(c, secret, presented)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, authOK := s.clientAuth(r, &req)
	if c == nil {
		writeEnvelope(w, http.StatusBadRequest, StateGenerationTokenError, "unknown client", nil)
		return
	}
	if !authOK {
		writeEnvelope(w, http.StatusUnauthorized, StateAuthError, "client authentication failed", nil)
		return
	}
	if !c.SupportsGrantType(req.GrantType) {
		writeErr(w, grant.ErrUnsupportedGrant)
		return
	}

	var (
		t   *grant.Token
		err error
	)
	switch req.GrantType {
	case "authorization_code":
		t, err = s.engine.ExchangeCode(r.Context(), c, req.Code, req.RedirectURI, req.CodeVerifier)
	case "password":
		t, err = s.engine.PasswordGrant(r.Context(), c, req.Username, req.Password, req.Scope)
	case "client_credentials":
		t, err = s.engine.ClientCredentialsGrant(r.Context(), c, req.Scope)
	case "refresh_token":
		t, err = s.engine.RefreshToken(r.Context(), c, req.RefreshToken)
	default:
		err = grant.ErrUnsupportedGrant
	}
	if err != nil {
		writeErr(w, err)
		return
	}

	data := map[string]any{
		"access_token": t.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   t.ExpiresIn,
		"scope":        t.Scope,
	}
	if t.RefreshToken != "" {
		data["refresh_token"] = t.RefreshToken
	}
	if idToken, ok := t.Metadata["id_token"]; ok {
		data["id_token"] = idToken
	}
	writeOK(w, data)
}

type revokeRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.Revoke(r.Context(), req.Token); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

type introspectRequest struct {
	ClientID string `json:"client_id"`
	Token    string `json:"token"`
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req introspectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sub, err := s.engine.Introspect(r.Context(), req.ClientID, req.Token)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, sub)
}

type refreshRequest struct {
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.clients.GetByClientID(r.Context(), req.ClientID)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, StateGenerationTokenError, "unknown client", nil)
		return
	}

	t, err := s.engine.RefreshToken(r.Context(), c, req.RefreshToken)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"access_token": t.AccessToken})
}
