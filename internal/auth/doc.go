// Package auth supplies bearer tokens for the notebook API.
//
// Provider tries silent acquisition from the identity cache first and falls
// back to one shared interactive sign-in. Requests that arrive while a sign-in
// is running wait for it and receive its outcome instead of starting another.
// The identity SDK sits behind the Identity interface; MSALIdentity is the
// production implementation and FileCache persists its account cache.
package auth
