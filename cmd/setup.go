// File: cmd/setup.go
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xkilldash9x/erplogin/api/schemas"
	"github.com/xkilldash9x/erplogin/internal/profile"
)

// Number of security questions the portal may ask.
const securityQuestionCount = 3

func newSetupCmd(a *app) *cobra.Command {
	var fromFile string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Store ERP credentials and security answers",
		Long: `Store the roll number, password and the answers to the portal's security questions.

Values are prompted for interactively, or read from a YAML file with --from:

  roll_number: 21CS10001
  password: secret
  security_questions:
    - question: What is your pet's name?
      answer: Bruno`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				creds *schemas.Credentials
				err   error
			)
			if fromFile != "" {
				creds, err = readCredentialsFile(fromFile)
			} else {
				creds, err = promptCredentials(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}

			prof, kv, err := a.openProfile(cmd.Context())
			if err != nil {
				return err
			}
			defer kv.Close()
			if err := prof.SaveCredentials(cmd.Context(), *creds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved credentials for %s with %d security question(s).\n",
				creds.RollNumber, len(creds.SecurityQuestions))
			return nil
		},
	}
	cmd.Flags().StringVar(&fromFile, "from", "", "read credentials from a YAML file")
	return cmd
}

func readCredentialsFile(path string) (*schemas.Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials file: %w", err)
	}
	defer f.Close()
	return profile.ImportYAML(f)
}

// promptCredentials reads credentials line by line. The password is read without echo
// when in is a terminal.
func promptCredentials(in io.Reader, out io.Writer) (*schemas.Credentials, error) {
	r := bufio.NewReader(in)

	roll, err := prompt(r, out, "Roll number: ")
	if err != nil {
		return nil, err
	}
	password, err := promptSecret(r, in, out, "ERP password: ")
	if err != nil {
		return nil, err
	}
	if !schemas.ValidateCredentials(roll, password) {
		return nil, fmt.Errorf("invalid credentials: roll number must be at least 8 characters and password at least 6")
	}

	creds := &schemas.Credentials{RollNumber: roll, Password: password}
	fmt.Fprintf(out, "Enter up to %d security questions exactly as the portal shows them. Leave a question blank to finish.\n", securityQuestionCount)
	for i := 1; i <= securityQuestionCount; i++ {
		q, err := prompt(r, out, fmt.Sprintf("Question %d: ", i))
		if err != nil {
			return nil, err
		}
		if q == "" {
			break
		}
		ans, err := prompt(r, out, fmt.Sprintf("Answer %d: ", i))
		if err != nil {
			return nil, err
		}
		if ans == "" {
			return nil, fmt.Errorf("answer to question %d must not be empty", i)
		}
		creds.SecurityQuestions = append(creds.SecurityQuestions, schemas.SecurityQuestion{
			Question: q,
			Answer:   ans,
			ID:       schemas.SecurityQuestionID(q),
		})
	}
	return creds, nil
}

func prompt(r *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptSecret(r *bufio.Reader, in io.Reader, out io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return prompt(r, out, label)
}
