/*
Package session manages the long-lived links of the Console.

Agent links bind a framed transport to an instance; a duplicate link for
the same instance replaces the prior one after a DISCONNECT event. A
live link holds a volatile online flag refreshed by each heartbeat.

Viewer links subscribe to the fan-out bus and re-authorize every frame
at delivery time. Interactive terminal sessions tunnel between a viewer
and an agent through a small state machine (connecting, connected, then
closed, disconnected or error); input ahead of terminal:created is
buffered up to 64 KiB. Broadcast groups replicate input to connected
sessions only. The command relay runs one-shot commands with a timeout
(default 30s, cap 3600s, exit 124 on kill, -1 on cancel).
*/
package session
