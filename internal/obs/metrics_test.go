package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/users":                       "/v1/users",
		"/v1/users/invite":                "/v1/users/invite",
		"/v1/users/abc":                   "/v1/users/:id",
		"/v1/users/abc/global-role":       "/v1/users/:id/global-role",
		"/v1/users/abc/project-roles":     "/v1/users/:id/project-roles",
		"/v1/users/abc/project-roles/p1":  "/v1/users/:id/project-roles/:projectID",
		"/v1/users/abc/audit-log?limit=5": "/v1/users/:id/audit-log",
		"/v1/projects":                    "/v1/projects",
		"/v1/projects/p1":                 "/v1/projects/:id",
		"/v1/auth/token":                  "/v1/auth/token",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
