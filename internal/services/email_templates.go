package services

import "html/template"

type emailData struct {
	FirstName string
	Code      string
	Link      string
	TTL       string
}

var verificationEmailTmpl = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Confirm your email - Vibe</title></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: #fff; padding: 40px; border-radius: 10px;">
    <h1 style="color: #6366f1; text-align: center;">Vibe</h1>
    <h2>Confirm your email</h2>
    <p>Hi <strong>{{.FirstName}}</strong>,</p>
    <p>Welcome to Vibe! To finish signing up, confirm your email address.</p>
    <div style="border: 2px dashed #e2e8f0; border-radius: 8px; padding: 20px; text-align: center;">
      <p><strong>Your verification code:</strong></p>
      <div style="font-size: 32px; font-weight: bold; color: #6366f1; letter-spacing: 4px;">{{.Code}}</div>
      <p style="font-size: 14px; color: #6b7280;">This code expires in {{.TTL}}.</p>
    </div>
    <p style="text-align: center;">
      <a href="{{.Link}}" style="display: inline-block; background: #6366f1; color: #fff; padding: 15px 30px; text-decoration: none; border-radius: 8px;">Confirm email</a>
    </p>
    <p style="font-size: 14px; color: #92400e;">If you did not sign up for Vibe, you can safely ignore this email.</p>
  </div>
</body>
</html>`))

var recoveryEmailTmpl = template.Must(template.New("recovery").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Password recovery - Vibe</title></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: #fff; padding: 40px; border-radius: 10px;">
    <h1 style="color: #ef4444; text-align: center;">Vibe</h1>
    <h2>Password recovery</h2>
    <p>Hi <strong>{{.FirstName}}</strong>,</p>
    <p>We received a request to reset the password for your account.</p>
    <div style="background: #fef2f2; border-radius: 8px; padding: 20px; text-align: center;">
      <p><strong>Your recovery code:</strong></p>
      <div style="font-size: 32px; font-weight: bold; color: #ef4444; letter-spacing: 4px;">{{.Code}}</div>
      <p style="font-size: 14px; color: #6b7280;">This code expires in {{.TTL}}.</p>
    </div>
    <p style="text-align: center;">
      <a href="{{.Link}}" style="display: inline-block; background: #ef4444; color: #fff; padding: 15px 30px; text-decoration: none; border-radius: 8px;">Reset password</a>
    </p>
    <p style="font-size: 14px; color: #92400e;">If you did not request this change, ignore this email. Your password stays the same.</p>
  </div>
</body>
</html>`))
