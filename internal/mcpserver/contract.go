package mcpserver

// NamingRulesURI is the resource URI of the naming contract.
const NamingRulesURI = "virt://naming-rules"

// NamingRules describes what the registry accepts and how names resolve,
// for LLM consumers that suggest or explain VIRT names.
const NamingRules = `# VIRT Naming Rules

Every VIRT name has the form ` + "`" + `virt://<label>.<tag>[/path]` + "`" + `.

## Tags

Only four tags exist: ` + "`" + `vc` + "`" + `, ` + "`" + `biz` + "`" + `, ` + "`" + `org` + "`" + `, ` + "`" + `lit` + "`" + `.
Anything else (` + "`" + `.com` + "`" + `, ` + "`" + `.net` + "`" + `, ...) is rejected.

## Labels

1. 3 to 63 characters.
2. Lowercase ASCII letters, digits and hyphens only.
3. Must not start or end with a hyphen.
4. No dots: ` + "`" + `a.b.vc` + "`" + ` is not registrable.

## System names

` + "`" + `lookin.at` + "`" + ` (search), ` + "`" + `register.at` + "`" + ` (registration) and
` + "`" + `about.at` + "`" + ` are bundled with the resolver and cannot be registered.

## Targets

A name points at an ` + "`" + `https://` + "`" + ` URL or a bare IPv4 address with an optional
port (` + "`" + `192.168.1.20:8080` + "`" + `). GitHub repository URLs are served from
` + "`" + `raw.githubusercontent.com` + "`" + `, so ` + "`" + `virt://name.vc/docs/a.md` + "`" + ` fetches
that file from the repository.

## Ownership

Registration returns a secret key exactly once. Updates and deletion
require it. A lost key cannot be recovered, so this server exposes no
mutating tools: register, update and delete through the API or CLI.

## Metadata

- Title: up to 100 characters.
- Description: up to 500 characters.
- Search weighs title over keywords over description over page text.
`
