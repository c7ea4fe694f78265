// Package watcher turns filesystem activity in the Incoming directory into
// debounced scan requests.
//
// Push events come from fsnotify; a cron-driven poll acts as a safety net for
// filesystems that drop notifications. Every event re-arms a single debounce
// timer, and when the timer fires a scan is posted to a serial executor. A
// scan requested while another runs is dropped; the next debounce cycle sees
// whatever it missed.
package watcher
