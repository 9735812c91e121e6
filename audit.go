package auth

import "context"

// logActivity appends a row to the user activity trail. Audit writes never
// fail the request they describe; a write error is logged and dropped.
func (a *AuthService) logActivity(ctx context.Context, userID uint, action, description string, rc RequestContext) {
	activity := &Activity{
		UserID:      userID,
		Action:      action,
		Description: description,
		IPAddress:   rc.IPAddress,
		UserAgent:   rc.UserAgent,
		CreatedAt:   a.now(),
	}
	if err := a.storage.RecordActivity(ctx, activity); err != nil {
		a.logger.Warn("Failed to record activity",
			"action", action, "user_id", userID, "error", err)
	}
}

// logSecurityEvent records the activity row and additionally emits the
// event on the security stream, kept distinct from the general error log.
func (a *AuthService) logSecurityEvent(ctx context.Context, userID uint, action, description string, rc RequestContext) {
	a.logActivity(ctx, userID, action, description, rc)
	a.security.Warn(description,
		"action", action,
		"user_id", userID,
		"ip", rc.IPAddress,
		"user_agent", rc.UserAgent)
}
