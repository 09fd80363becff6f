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

// Package api implements the HTTP Surface (C8): a chi.Router exposing the
// endpoint table of spec.md §6 over the Account Manager, Client Registry,
// and Grant Engine services.
package api

// Response codes (spec.md §6/§7). These are the only values ever placed
// in Envelope.Code; the wire vocabulary lives here, not in the domain
// packages.
const (
	StateSucceed              = "SUCCEED"
	StateLoginError            = "LOGIN_ERROR"
	StatePasswordError         = "PASSWORD_ERROR"
	StateTokenError            = "TOKEN_ERROR"
	StateTokenExpire           = "TOKEN_EXPIRE"
	StateParamError            = "PARAM_ERROR"
	StatePartialSucceed        = "PARTIAL_SUCCEED"
	StateDatabaseInsertError   = "DATABASE_INSERT_ERROR"
	StateDatabaseQueryError    = "DATABASE_QUERY_ERROR"
	StateDatabaseUpdateError   = "DATABASE_UPDATE_ERROR"
	StateDatabaseDeleteError   = "DATABASE_DELETE_ERROR"
	StatePermissionError       = "PERMISSION_ERROR"
	StateDataExist             = "DATA_EXIST"
	StateNoData                = "NO_DATA"
	StateRepeatData            = "REPEAT_DATA"
	StateGenerationTokenError  = "GENERATION_TOKEN_ERROR"
	StateAuthError             = "AUTH_ERROR"
)
