package email

import (
	"html/template"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #FF9933; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; color: #138808; text-align: center; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; text-align: center; }
    </style>
</head>
<body>
    <div class="header"><h1>BharatGPT</h1></div>
    <div class="content">{{template "content" .}}</div>
    <div class="footer"><p>&copy; BharatGPT. All rights reserved.</p></div>
</body>
</html>{{end}}`

var contents = map[Variant]string{
	VariantRegistrationOTP: `{{define "content"}}
        <h2>Verify your email address</h2>
        <p>Use the code below to finish creating your BharatGPT account.</p>
        <div class="code">{{.Code}}</div>
        <p>This code expires in {{.Minutes}} minutes. If you did not sign up, you can ignore this email.</p>
{{end}}`,
	VariantLoginOTP: `{{define "content"}}
        <h2>Your login code</h2>
        <p>Enter this code to sign in to BharatGPT.</p>
        <div class="code">{{.Code}}</div>
        <p>This code expires in {{.Minutes}} minutes. Never share it with anyone.</p>
{{end}}`,
	VariantPasswordResetOTP: `{{define "content"}}
        <h2>Reset your password</h2>
        <p>We received a request to reset your password. Enter this code to continue.</p>
        <div class="code">{{.Code}}</div>
        <p>This code expires in {{.Minutes}} minutes. If you did not request a reset, your password stays unchanged.</p>
{{end}}`,
	VariantWelcome: `{{define "content"}}
        <h2>Welcome{{if .Name}}, {{.Name}}{{end}}!</h2>
        <p>Your BharatGPT account is ready. Ask about government schemes, forms, agriculture and finance in your language.</p>
        <p><a href="{{.FrontendURL}}">Open BharatGPT</a></p>
{{end}}`,
	VariantPasswordChanged: `{{define "content"}}
        <h2>Password changed</h2>
        <p>Hello{{if .Name}} {{.Name}}{{end}}, the password for your BharatGPT account was changed on {{.ChangedAt}}.</p>
        <p>If this was not you, reset your password immediately.</p>
{{end}}`,
}

func mustParseTemplates() map[Variant]*template.Template {
	out := make(map[Variant]*template.Template, len(contents))
	for variant, content := range contents {
		t := template.Must(template.New(string(variant)).Parse(layout))
		template.Must(t.Parse(content))
		out[variant] = t.Lookup("layout")
	}
	return out
}
