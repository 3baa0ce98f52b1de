package preflight

// Well-known tools driven by the pipelines.
var (
	Terraform = Tool{Name: "terraform", VersionArgs: []string{"version"}}
	AWSCLI    = Tool{Name: "aws", VersionArgs: []string{"--version"}}
	Kubectl   = Tool{Name: "kubectl", VersionArgs: []string{"version", "--client"}}
	Helm      = Tool{Name: "helm", VersionArgs: []string{"version", "--short"}}
	// Docker asks the daemon for its version, so a stopped daemon fails here.
	Docker = Tool{Name: "docker", VersionArgs: []string{"version", "--format", "{{.Server.Version}}"}}
)

// ProvisionTools returns the tools the provisioning pipeline needs.
func ProvisionTools(withBuild bool) []Tool {
	tools := []Tool{Terraform, AWSCLI, Kubectl, Helm}
	if withBuild {
		tools = append(tools, Docker)
	}
	return tools
}

// TeardownTools returns the tools the teardown pipeline needs.
func TeardownTools() []Tool {
	return []Tool{Terraform, AWSCLI, Kubectl, Helm}
}
