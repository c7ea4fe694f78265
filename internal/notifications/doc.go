// Package notifications pushes job outcomes to ntfy.
//
// The service degrades to a no-op when no topic is configured. Failure
// notices are on by default and name the requeue command; success notices
// are opt-in and link to the uploaded page when the API returned one.
package notifications
