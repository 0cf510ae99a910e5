package protocol

import "fmt"

func (d *Dispatcher) pluginsList(sess *Session) Result {
	if !d.isOwner(sess) {
		return ErrorResult("Access denied: owner role required")
	}
	return Result{"cmd": "plugins_list", "plugins": d.plugins.List()}
}

func (d *Dispatcher) pluginsReload(sess *Session, c *Command) Result {
	if !d.isOwner(sess) {
		return ErrorResult("Access denied: owner role required")
	}
	if c.Plugin != "" {
		if !d.plugins.Reload(c.Plugin) {
			return ErrorResult(fmt.Sprintf("Failed to reload plugin '%s'", c.Plugin))
		}
		return Result{"cmd": "plugins_reload", "val": fmt.Sprintf("Plugin '%s' reloaded successfully", c.Plugin)}
	}
	d.plugins.ReloadAll()
	return Result{"cmd": "plugins_reload", "val": "All plugins reloaded successfully"}
}

func (d *Dispatcher) rateLimitStatus(sess *Session, c *Command) Result {
	target := c.User
	if target == "" {
		target = sess.Username
	}
	if target != sess.Username && !d.isOwner(sess) {
		return ErrorResult("Access denied: can only check your own rate limit status")
	}
	if d.limiter == nil || !d.limiter.Enabled() {
		return ErrorResult("Rate limiter not available or disabled")
	}
	return Result{"cmd": "rate_limit_status", "user": target, "status": d.limiter.Status(target)}
}

func (d *Dispatcher) rateLimitReset(sess *Session, c *Command) Result {
	if !d.isOwner(sess) {
		return ErrorResult("Access denied: owner role required")
	}
	if c.User == "" {
		return ErrorResult("User parameter is required")
	}
	if d.limiter == nil || !d.limiter.Enabled() {
		return ErrorResult("Rate limiter not available or disabled")
	}
	d.limiter.Reset(c.User)
	return Result{"cmd": "rate_limit_reset", "user": c.User, "val": fmt.Sprintf("Rate limit reset for user %s", c.User)}
}
