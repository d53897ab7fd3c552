// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
)

// siteURL is the cookie domain every session/DDG cookie is scoped to.
var siteURL = &url.URL{Scheme: "https", Host: "coomer.st"}

// setSessionCookie installs a single "session" cookie on jar, the
// minimal form of cookie acquisition this CLI accepts directly via
// --cookie; a full acquisition flow lives in external tooling.
func setSessionCookie(jar http.CookieJar, value string) error {
	jar.SetCookies(siteURL, []*http.Cookie{{Name: "session", Value: value}})
	return nil
}

// savedCookie is the on-disk shape of a --session file: a flat list of
// name/value pairs, the simplest format an external acquisition tool
// could reasonably emit.
type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// loadCookieJarFile reads a JSON array of {name, value} cookies from
// path and installs them on jar, scoped to siteURL.
func loadCookieJarFile(jar http.CookieJar, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var saved []savedCookie
	if err := json.Unmarshal(b, &saved); err != nil {
		return err
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	jar.SetCookies(siteURL, cookies)
	return nil
}
