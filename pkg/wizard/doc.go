// Package wizard stores deployment templates and validates wizard
// submissions before handing them to instance registration.
package wizard
