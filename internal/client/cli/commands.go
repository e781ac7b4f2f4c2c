package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ivlasov/passvault/internal/common"
	"github.com/ivlasov/passvault/internal/cryptox"
	"github.com/ivlasov/passvault/internal/health"
	"github.com/ivlasov/passvault/internal/totp"
	"github.com/ivlasov/passvault/internal/vault"
)

func (a *App) setup(ctx context.Context) {
	pw, err := GetPassword(os.Stdout, "Choose a master password: ")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer cryptox.Wipe(pw)

	if err := a.engine.Setup(ctx, pw); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Vault created and unlocked.")
}

func (a *App) unlock(ctx context.Context) {
	pw, err := GetPassword(os.Stdout, "Master password: ")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer cryptox.Wipe(pw)

	err = a.engine.Unlock(ctx, pw)
	switch {
	case err == nil:
		fmt.Println("Vault unlocked.")
	case errors.Is(err, common.ErrUnauthorized):
		fmt.Println("Wrong username or password.")
	case errors.Is(err, common.ErrVaultNotSetup):
		fmt.Println("No vault for this account yet. Run 'setup' first.")
	default:
		fmt.Println("Error:", err)
	}
}

func (a *App) quickUnlock(ctx context.Context) {
	if err := a.engine.UnlockWithCache(ctx); err != nil {
		fmt.Println("Quick unlock failed:", err)
		fmt.Println("Try a full 'unlock' instead.")
		return
	}
	fmt.Println("Vault unlocked from local cache.")
}

func (a *App) list(ctx context.Context) {
	items, err := a.engine.Items()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("Vault is empty.")
		return
	}
	for _, item := range items {
		star := " "
		if item.Favorite {
			star = "*"
		}
		fmt.Printf("%s [%s] %-10s %s\n", star, item.ID, item.Kind(), item.Name)
	}
}

func (a *App) trash(ctx context.Context) {
	items, err := a.engine.TrashItems()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("Trash is empty.")
		return
	}
	for _, item := range items {
		fmt.Printf("  [%s] %-10s %s\n", item.ID, item.Kind(), item.Name)
	}
}

func (a *App) show(ctx context.Context, args []string) {
	id, ok := a.wantID(args, "show")
	if !ok {
		return
	}
	item, err := a.engine.FindItem(id)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	fmt.Printf("Name: %s\nType: %s\n", item.Name, item.Kind())
	switch data := item.Data.(type) {
	case *vault.PasswordData:
		fmt.Printf("Username: %s\nPassword: %s\n", data.Username, data.Password)
		if len(data.URLs) > 0 {
			fmt.Printf("URLs: %s\n", strings.Join(data.URLs, ", "))
		}
		if data.Notes != "" {
			fmt.Printf("Notes: %s\n", data.Notes)
		}
		if data.TOTP != nil {
			fmt.Println("TOTP: configured (use 'totp " + item.ID + "')")
		}
	case *vault.NoteData:
		fmt.Println(data.Content)
	case *vault.CardData:
		fmt.Printf("Cardholder: %s\nNumber: %s\nExpires: %02d/%d\n", data.CardholderName, data.Number, data.ExpiryMonth, data.ExpiryYear)
	case *vault.BankAccountData:
		fmt.Printf("Holder: %s\nAccount: %s\n", data.AccountHolder, data.AccountNumber)
		if data.IBAN != "" {
			fmt.Printf("IBAN: %s\n", data.IBAN)
		}
	case *vault.CryptoWalletData:
		fmt.Printf("Address: %s\n", data.Address)
		if data.SeedPhrase != "" {
			fmt.Println("Seed phrase: stored (not shown)")
		}
	case *vault.FileData:
		fmt.Printf("File: %s (%s)\nStored at: %s\n", data.FileName, data.MimeType, data.ObjectStoreKey)
		fmt.Println("Use 'getfile " + item.ID + "' for a download link.")
	case *vault.PasskeyData:
		fmt.Printf("Relying party: %s (%s)\nUser: %s\n", data.RelyingPartyName, data.RelyingPartyID, data.UserName)
	case *vault.CorruptedData:
		fmt.Println("This item could not be parsed and is shown as-is.")
	default:
		fmt.Println("(no printable fields)")
	}
}

func (a *App) addLogin(ctx context.Context) {
	name, err := GetSimpleText(a.reader, "Entry name", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	pw, err := GetPassword(os.Stdout, "Password: ")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	site, err := GetSimpleText(a.reader, "Website URL (optional)", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	uri, err := GetSimpleText(a.reader, "TOTP otpauth:// URI (optional)", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	data := &vault.PasswordData{Username: username, Password: string(pw)}
	cryptox.Wipe(pw)
	if site != "" {
		data.URLs = []string{site}
	}
	if uri != "" {
		cfg, err := totp.ParseURI(uri)
		if err != nil {
			fmt.Println("Ignoring TOTP URI:", err)
		} else {
			data.TOTP = &cfg
		}
	}

	id, err := a.engine.AddItem(ctx, vault.Item{Name: name, Data: data})
	a.reportSave(id, err)
}

func (a *App) addNote(ctx context.Context) {
	name, err := GetSimpleText(a.reader, "Note name", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	body, err := GetMultiline(a.reader, "Note text", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	id, err := a.engine.AddItem(ctx, vault.Item{Name: name, Data: &vault.NoteData{Content: body}})
	a.reportSave(id, err)
}

func (a *App) addCard(ctx context.Context) {
	name, err := GetSimpleText(a.reader, "Entry name", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	holder, err := GetSimpleText(a.reader, "Cardholder", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	number, err := GetSimpleText(a.reader, "Card number", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	cvv, err := GetPassword(os.Stdout, "CVV: ")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	data := &vault.CardData{CardholderName: holder, Number: number, CVV: string(cvv)}
	cryptox.Wipe(cvv)

	id, err := a.engine.AddItem(ctx, vault.Item{Name: name, Data: data})
	a.reportSave(id, err)
}

func (a *App) addBank(ctx context.Context) {
	name, err := GetSimpleText(a.reader, "Entry name", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	holder, err := GetSimpleText(a.reader, "Account holder (optional)", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	number, err := GetSimpleText(a.reader, "Account number", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	iban, err := GetSimpleText(a.reader, "IBAN (optional)", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	data := &vault.BankAccountData{AccountHolder: holder, AccountNumber: number, IBAN: iban}
	id, err := a.engine.AddItem(ctx, vault.Item{Name: name, Data: data})
	a.reportSave(id, err)
}

func (a *App) addWallet(ctx context.Context) {
	name, err := GetSimpleText(a.reader, "Entry name", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	address, err := GetSimpleText(a.reader, "Wallet address", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	seed, err := GetPassword(os.Stdout, "Seed phrase (optional): ")
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	data := &vault.CryptoWalletData{Address: address, SeedPhrase: string(seed)}
	cryptox.Wipe(seed)

	id, err := a.engine.AddItem(ctx, vault.Item{Name: name, Data: data})
	a.reportSave(id, err)
}

// addFile records attachment metadata and hands the user a presigned URL.
// The blob must be encrypted before upload; the server never sees plaintext.
func (a *App) addFile(ctx context.Context) {
	name, err := GetSimpleText(a.reader, "Entry name", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fileName, err := GetSimpleText(a.reader, "File name", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	mime, err := GetSimpleText(a.reader, "MIME type (optional)", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	key, url, err := a.engine.AttachmentUploadURL(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	data := &vault.FileData{FileName: fileName, MimeType: mime, ObjectStoreKey: key}
	id, err := a.engine.AddItem(ctx, vault.Item{Name: name, Data: data})
	a.reportSave(id, err)
	if err == nil || errors.Is(err, common.ErrNetwork) {
		fmt.Println("Upload the encrypted file with an HTTP PUT to:")
		fmt.Println(" ", url)
		fmt.Println("The link expires in 15 minutes.")
	}
}

func (a *App) getFile(ctx context.Context, args []string) {
	id, ok := a.wantID(args, "getfile")
	if !ok {
		return
	}
	item, err := a.engine.FindItem(id)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	data, ok := item.Data.(*vault.FileData)
	if !ok {
		fmt.Println("Not a file item.")
		return
	}

	url, err := a.engine.AttachmentDownloadURL(ctx, data.ObjectStoreKey)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Download %s (%s) from:\n  %s\nThe link expires in 15 minutes.\n", data.FileName, data.MimeType, url)
}

func (a *App) rename(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: rename <id> <new name>")
		return
	}
	id := args[0]
	name := strings.Join(args[1:], " ")

	item, err := a.engine.FindItem(id)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	a.reportMutation(a.engine.UpdateItem(ctx, id, name, item.FolderID, item.Data), "Renamed.")
}

func (a *App) deleteItem(ctx context.Context, args []string) {
	id, ok := a.wantID(args, "delete")
	if !ok {
		return
	}
	a.reportMutation(a.engine.SoftDeleteItem(ctx, id), "Moved to trash.")
}

func (a *App) restore(ctx context.Context, args []string) {
	id, ok := a.wantID(args, "restore")
	if !ok {
		return
	}
	a.reportMutation(a.engine.RestoreItem(ctx, id), "Restored.")
}

func (a *App) purge(ctx context.Context, args []string) {
	id, ok := a.wantID(args, "purge")
	if !ok {
		return
	}
	a.reportMutation(a.engine.PermanentlyDeleteItem(ctx, id), "Permanently deleted.")
}

func (a *App) emptyTrash(ctx context.Context) {
	n, err := a.engine.EmptyTrash(ctx)
	if err != nil && !common.IsVersionConflict(err) {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Removed %d item(s).\n", n)
}

func (a *App) fav(ctx context.Context, args []string) {
	id, ok := a.wantID(args, "fav")
	if !ok {
		return
	}
	a.reportMutation(a.engine.ToggleFavorite(ctx, id), "Favorite toggled.")
}

func (a *App) folders(ctx context.Context) {
	folders, err := a.engine.Folders()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if len(folders) == 0 {
		fmt.Println("No folders.")
		return
	}
	for _, f := range folders {
		fmt.Printf("  [%s] %s\n", f.ID, f.Name)
	}
}

func (a *App) addFolder(ctx context.Context) {
	name, err := GetSimpleText(a.reader, "Folder name", os.Stdout)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	f, err := a.engine.AddFolder(ctx, name, nil)
	if err != nil && !common.IsVersionConflict(err) {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Created folder", f.ID)
}

func (a *App) rmFolder(ctx context.Context, args []string) {
	id, ok := a.wantID(args, "rmfolder")
	if !ok {
		return
	}
	a.reportMutation(a.engine.DeleteFolder(ctx, id), "Folder removed; its items moved to the root.")
}

func (a *App) totpCode(ctx context.Context, args []string) {
	id, ok := a.wantID(args, "totp")
	if !ok {
		return
	}
	code, secondsLeft, err := a.engine.TOTPCode(id)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("%s (valid for %ds)\n", code, secondsLeft)
}

func (a *App) health(ctx context.Context) {
	report, err := a.engine.HealthReport()
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("Passwords: %d\n", report.TotalPasswords)
	fmt.Printf("  weak:      %d\n", report.WeakCount)
	fmt.Printf("  reused:    %d\n", report.ReusedCount)
	fmt.Printf("  old (>%dd): %d\n", int(health.OldPasswordAge.Hours()/24), report.OldCount)
	fmt.Printf("  no 2FA:    %d\n", report.NoTOTPCount)
	fmt.Printf("Overall score: %d/100\n", report.Score)
}

func (a *App) sync(ctx context.Context) {
	err := a.engine.Sync(ctx)
	switch {
	case err == nil:
		fmt.Printf("In sync at version %d.\n", a.engine.ServerVersion())
	case common.IsVersionConflict(err):
		fmt.Println("Server had newer data; local state replaced.")
	default:
		fmt.Println("Sync failed:", err)
	}
}

func (a *App) signOut(ctx context.Context) {
	if err := a.engine.SignOutAndClear(ctx); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("Signed out. Local cache and saved key removed.")
}

// wantID extracts the single <id> argument commands like show/delete need.
func (a *App) wantID(args []string, cmd string) (string, bool) {
	if len(args) != 1 {
		fmt.Printf("Usage: %s <id>\n", cmd)
		return "", false
	}
	return args[0], true
}

// reportSave prints the outcome of an add. A version conflict still means
// the server state won and the new entry was discarded with it.
func (a *App) reportSave(id string, err error) {
	switch {
	case err == nil:
		fmt.Println("Saved", id)
	case common.IsVersionConflict(err):
		fmt.Println("Server had newer data; your entry is kept locally, run sync to resolve.")
	case errors.Is(err, common.ErrNetwork):
		fmt.Println("Saved", id, "locally; will push on next sync.")
	default:
		fmt.Println("Error:", err)
	}
}

func (a *App) reportMutation(err error, okMsg string) {
	switch {
	case err == nil:
		fmt.Println(okMsg)
	case common.IsVersionConflict(err):
		fmt.Println("Server had newer data; your change is kept locally, run sync to resolve.")
	case errors.Is(err, common.ErrNetwork):
		fmt.Println(okMsg, "(offline; will push on next sync)")
	default:
		fmt.Println("Error:", err)
	}
}
