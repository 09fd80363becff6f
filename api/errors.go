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
	"errors"
	"net/http"

	"github.com/oauthhub/authhub/client"
	"github.com/oauthhub/authhub/grant"
	"github.com/oauthhub/authhub/jwtcodec"
	"github.com/oauthhub/authhub/sessioncache"
	"github.com/oauthhub/authhub/user"
)

// codeFor translates a domain sentinel error into the wire response code
// and an HTTP status (spec.md §7). Keeping this switch in api is what lets
// client/user/grant/sso stay free of HTTP concerns, the way the teacher's
// service packages never import net/http either.
func codeFor(err error) (code string, httpStatus int) {
	switch {
	case err == nil:
		return StateSucceed, http.StatusOK

	case errors.Is(err, user.ErrLoginNotFound):
		return StateLoginError, http.StatusUnauthorized
	case errors.Is(err, user.ErrLoginBadPassword):
		return StatePasswordError, http.StatusUnauthorized
	case errors.Is(err, user.ErrUserAlreadyExists):
		return StateDataExist, http.StatusConflict
	case errors.Is(err, user.ErrUserNotFound), errors.Is(err, user.ErrAdminNotFound):
		return StateNoData, http.StatusNotFound
	case errors.Is(err, user.ErrPermissionDenied):
		return StatePermissionError, http.StatusForbidden
	case errors.Is(err, user.ErrInvalidCredentials):
		return StateAuthError, http.StatusUnauthorized
	case errors.Is(err, user.ErrPartialSuccess):
		return StatePartialSucceed, http.StatusOK

	case errors.Is(err, client.ErrClientNotFound):
		return StateNoData, http.StatusNotFound
	case errors.Is(err, client.ErrClientAlreadyExists):
		return StateDataExist, http.StatusConflict
	case errors.Is(err, client.ErrInvalidClientURI),
		errors.Is(err, client.ErrInvalidRedirectURI),
		errors.Is(err, client.ErrDomainInvalidRedirectURI),
		errors.Is(err, client.ErrDomainInvalidScope),
		errors.Is(err, client.ErrDomainInvalidGrantType):
		return StateParamError, http.StatusBadRequest
	case errors.Is(err, client.ErrDomainInvalidClient):
		return StateAuthError, http.StatusUnauthorized

	case errors.Is(err, grant.ErrCodeNotFound),
		errors.Is(err, grant.ErrInvalidGrant),
		errors.Is(err, grant.ErrInvalidPKCE):
		return StateAuthError, http.StatusBadRequest
	case errors.Is(err, grant.ErrCodeAlreadyExists), errors.Is(err, grant.ErrDuplicateNonce):
		return StateRepeatData, http.StatusConflict
	case errors.Is(err, grant.ErrInvalidScope):
		return StateParamError, http.StatusBadRequest
	case errors.Is(err, grant.ErrUnsupportedGrant), errors.Is(err, grant.ErrUnsupportedRequest):
		return StateParamError, http.StatusBadRequest
	case errors.Is(err, grant.ErrTokenNotFound):
		return StateTokenError, http.StatusUnauthorized

	case errors.Is(err, jwtcodec.ErrExpired):
		return StateTokenExpire, http.StatusUnauthorized
	case errors.Is(err, jwtcodec.ErrInvalid):
		return StateTokenError, http.StatusUnauthorized

	case errors.Is(err, sessioncache.ErrNotFound):
		return StateTokenError, http.StatusUnauthorized

	default:
		return StateDatabaseQueryError, http.StatusInternalServerError
	}
}
