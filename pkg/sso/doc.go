// Package sso provides GitHub and Google login for taskhub.
//
// GitHub uses plain OAuth2 and reads the profile from the REST API. Google
// uses OpenID Connect; the profile comes from the verified ID token.
//
// Both flows end in auth.Service.LoginExternal, which matches the user by
// provider id, then by email, and otherwise creates an account.
//
// # Routes
//
//	GET /auth/oauth                      enabled provider names
//	GET /auth/oauth/{provider}           redirect to the provider
//	GET /auth/oauth/{provider}/callback  returns {token, expiresAt, user}
//
// The callback requires the state issued by the redirect, carried in a
// short-lived HttpOnly cookie.
package sso
