package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) getStatus() string {
	s := "locked"
	if a.isUnlocked() {
		s = "unlocked"
		if a.engine.Dirty() {
			s = "unlocked*"
		}
	}
	if a.config.Username != "" {
		s = a.config.Username + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}

func (a *App) Root(ctx context.Context) {

	fmt.Println("Welcome to PassVault CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("pv %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isUnlocked() {
				fmt.Println("Available commands: (l)ist, trash, show, addlogin, addnote, addcard, addbank, addwallet, addfile, getfile, rename, delete, restore, purge, emptytrash, fav, folders, addfolder, rmfolder, totp, health, sync, lock, signout, exit")
			} else {
				fmt.Println("Available commands: setup, unlock, quickunlock, exit")
			}

		case "setup":
			a.setup(ctx)
		case "unlock":
			a.unlock(ctx)
		case "quickunlock":
			a.quickUnlock(ctx)
		case "lock":
			a.engine.Lock()
		case "l", "list":
			a.list(ctx)
		case "trash":
			a.trash(ctx)
		case "show":
			a.show(ctx, args)
		case "addlogin":
			a.addLogin(ctx)
		case "addnote":
			a.addNote(ctx)
		case "addcard":
			a.addCard(ctx)
		case "addbank":
			a.addBank(ctx)
		case "addwallet":
			a.addWallet(ctx)
		case "addfile":
			a.addFile(ctx)
		case "getfile":
			a.getFile(ctx, args)
		case "rename":
			a.rename(ctx, args)
		case "delete":
			a.deleteItem(ctx, args)
		case "restore":
			a.restore(ctx, args)
		case "purge":
			a.purge(ctx, args)
		case "emptytrash":
			a.emptyTrash(ctx)
		case "fav":
			a.fav(ctx, args)
		case "folders":
			a.folders(ctx)
		case "addfolder":
			a.addFolder(ctx)
		case "rmfolder":
			a.rmFolder(ctx, args)
		case "totp":
			a.totpCode(ctx, args)
		case "health":
			a.health(ctx)
		case "sync":
			a.sync(ctx)
		case "signout":
			a.signOut(ctx)
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}
