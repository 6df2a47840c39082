// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/awnumar/memguard"
)

// Secret holds an API credential in a memguard enclave. For the HTTP
// backends the plaintext only exists while a request header is being built;
// the Gemini client is handed the key once at construction.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals value. An empty value yields an empty Secret.
func NewSecret(value string) *Secret {
	if value == "" {
		return &Secret{}
	}
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}
}

// Empty reports whether no credential is held. Safe on a nil receiver.
func (s *Secret) Empty() bool {
	return s == nil || s.enclave == nil
}

// Reveal opens the enclave and returns a copy of the plaintext.
func (s *Secret) Reveal() (string, error) {
	if s.Empty() {
		return "", fmt.Errorf("secret is empty")
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("open secret: %w", err)
	}
	defer buf.Destroy()
	return strings.Clone(buf.String()), nil
}

type secretTransport struct {
	base   http.RoundTripper
	secret *Secret
	header string
	prefix string
}

func (t *secretTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key, err := t.secret.Reveal()
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.Header.Set(t.header, t.prefix+key)
	return t.base.RoundTrip(out)
}
