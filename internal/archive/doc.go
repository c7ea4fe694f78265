// Package archive prunes finished jobs from the Done directory.
package archive
