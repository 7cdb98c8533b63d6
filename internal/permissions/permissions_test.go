package permissions

import "testing"

func TestPermissionConstants_NoDuplicates(t *testing.T) {
	seen := make(map[Bitset]string)
	for bit, name := range names {
		if existing, ok := seen[bit]; ok {
			t.Errorf("duplicate bit 0x%X: %s and %s", bit, existing, name)
		}
		seen[bit] = name
	}
}

func TestPermissionConstants_ArePowersOfTwo(t *testing.T) {
	for bit, name := range names {
		if bit == 0 || (bit&(bit-1)) != 0 {
			t.Errorf("permission %s (0x%X) is not a power of two", name, bit)
		}
	}
}

func TestHas(t *testing.T) {
	tests := []struct {
		name   string
		perms  Bitset
		req    Bitset
		expect bool
	}{
		{"has single", SendMessages, SendMessages, true},
		{"missing", SendMessages, ManageGuild, false},
		{"has among many", SendMessages | ViewChannel | ManageRoles, ViewChannel, true},
		{"zero perms", 0, SendMessages, false},
		{"administrator grants all", Administrator, ManageGuild, true},
		{"subset of multiple required", ViewChannel | SendMessages, ViewChannel | SendMessages, true},
		{"missing one of multiple required", ViewChannel, ViewChannel | SendMessages, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Has(tc.perms, tc.req); got != tc.expect {
				t.Errorf("Has(0x%X, 0x%X) = %v, want %v", tc.perms, tc.req, got, tc.expect)
			}
		})
	}
}

func TestEffectivePermissions_OwnerGetsAll(t *testing.T) {
	guild := Guild{OwnerID: "owner1", EveryoneRoleID: "everyone"}
	member := &Member{UserID: "owner1"}
	everyone := Role{ID: "everyone", Position: 0, Perms: ViewChannel, IsEveryone: true}

	got, err := EffectivePermissions(guild, member, everyone, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != All {
		t.Errorf("owner should get All, got %s", got.Debug())
	}
}

func TestEffectivePermissions_MemberNotFound(t *testing.T) {
	guild := Guild{OwnerID: "owner1"}
	everyone := Role{IsEveryone: true}

	_, err := EffectivePermissions(guild, nil, everyone, nil)
	if err != ErrMemberNotFound {
		t.Errorf("error = %v, want ErrMemberNotFound", err)
	}
}

func TestEffectivePermissions_EveryoneBaseline(t *testing.T) {
	guild := Guild{OwnerID: "owner1", EveryoneRoleID: "everyone"}
	member := &Member{UserID: "user1"}
	everyone := Role{ID: "everyone", Position: 0, Perms: ViewChannel | SendMessages, IsEveryone: true}

	got, err := EffectivePermissions(guild, member, everyone, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ViewChannel|SendMessages {
		t.Errorf("got %s, want ViewChannel|SendMessages", got.Debug())
	}
}

func TestEffectivePermissions_RolesOR(t *testing.T) {
	guild := Guild{OwnerID: "owner1", EveryoneRoleID: "everyone"}
	member := &Member{UserID: "user1", RoleIDs: []string{"mod", "helper"}}
	everyone := Role{ID: "everyone", Position: 0, Perms: ViewChannel, IsEveryone: true}
	roles := map[string]Role{
		"mod":    {ID: "mod", Position: 1, Perms: ManageMessages},
		"helper": {ID: "helper", Position: 2, Perms: AddReactions},
	}

	got, err := EffectivePermissions(guild, member, everyone, roles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ViewChannel | ManageMessages | AddReactions
	if got != want {
		t.Errorf("got %s, want %s", got.Debug(), want.Debug())
	}
}

func TestEffectivePermissions_DeletedRoleReferenceSkipped(t *testing.T) {
	guild := Guild{OwnerID: "owner1", EveryoneRoleID: "everyone"}
	member := &Member{UserID: "user1", RoleIDs: []string{"gone"}}
	everyone := Role{ID: "everyone", Position: 0, Perms: ViewChannel, IsEveryone: true}

	got, err := EffectivePermissions(guild, member, everyone, map[string]Role{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ViewChannel {
		t.Errorf("got %s, want ViewChannel only", got.Debug())
	}
}

func TestHighestRolePosition(t *testing.T) {
	roles := map[string]Role{
		"a": {ID: "a", Position: 3},
		"b": {ID: "b", Position: 7},
	}

	if got := HighestRolePosition(&Member{RoleIDs: []string{"a", "b"}}, roles); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	if got := HighestRolePosition(&Member{}, roles); got != -1 {
		t.Errorf("no roles: got %d, want -1", got)
	}
}

func TestCanManage(t *testing.T) {
	guild := Guild{OwnerID: "owner1"}
	roles := map[string]Role{
		"mod":    {ID: "mod", Position: 5},
		"member": {ID: "member", Position: 1},
	}

	tests := []struct {
		name   string
		actor  *Member
		target *Member
		expect bool
	}{
		{"owner manages anyone", &Member{UserID: "owner1"}, &Member{UserID: "user2", RoleIDs: []string{"member"}}, true},
		{"nobody manages owner", &Member{UserID: "user1", RoleIDs: []string{"mod"}}, &Member{UserID: "owner1"}, false},
		{"cannot manage self", &Member{UserID: "user1", RoleIDs: []string{"mod"}}, &Member{UserID: "user1", RoleIDs: []string{"mod"}}, false},
		{"higher role manages lower", &Member{UserID: "user1", RoleIDs: []string{"mod"}}, &Member{UserID: "user2", RoleIDs: []string{"member"}}, true},
		{"lower role cannot manage higher", &Member{UserID: "user1", RoleIDs: []string{"member"}}, &Member{UserID: "user2", RoleIDs: []string{"mod"}}, false},
		{"equal position cannot manage", &Member{UserID: "user1", RoleIDs: []string{"mod"}}, &Member{UserID: "user2", RoleIDs: []string{"mod"}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanManage(guild, tc.actor, tc.target, roles); got != tc.expect {
				t.Errorf("CanManage() = %v, want %v", got, tc.expect)
			}
		})
	}
}

func TestCanAssignRole(t *testing.T) {
	guild := Guild{OwnerID: "owner1"}
	roles := map[string]Role{
		"mod": {ID: "mod", Position: 5},
	}
	everyone := Role{ID: "everyone", Position: 0, IsEveryone: true}
	target := Role{ID: "target", Position: 3}

	if !CanAssignRole(guild, &Member{UserID: "owner1"}, target, roles) {
		t.Error("owner should be able to assign any role")
	}
	if CanAssignRole(guild, &Member{UserID: "user1", RoleIDs: []string{"mod"}}, everyone, roles) {
		t.Error("@everyone should never be assignable")
	}
	if !CanAssignRole(guild, &Member{UserID: "user1", RoleIDs: []string{"mod"}}, target, roles) {
		t.Error("higher-positioned actor should be able to assign a lower role")
	}
	if CanAssignRole(guild, &Member{UserID: "user1"}, target, roles) {
		t.Error("actor with no roles should not outrank a positioned role")
	}
}

func TestBitset_Names(t *testing.T) {
	got := (SendMessages | ViewChannel).Names()
	if len(got) != 2 {
		t.Fatalf("Names returned %d names, want 2", len(got))
	}
	set := map[string]bool{}
	for _, n := range got {
		set[n] = true
	}
	if !set["SEND_MESSAGES"] || !set["VIEW_CHANNEL"] {
		t.Errorf("Names() = %v, want SEND_MESSAGES and VIEW_CHANNEL", got)
	}
}

func TestBitset_String(t *testing.T) {
	if got := SendMessages.String(); got != "2" {
		t.Errorf("String() = %q, want %q", got, "2")
	}
}

func TestBitset_Debug(t *testing.T) {
	d := SendMessages.Debug()
	if d == "" {
		t.Fatal("Debug returned empty string")
	}
}

func TestAll_IncludesAdministrator(t *testing.T) {
	if All&Administrator == 0 {
		t.Error("All should include Administrator")
	}
}

func TestDefaultEveryone_NoManagementBits(t *testing.T) {
	managementBits := ManageChannels | ManageRoles | ManageGuild | KickMembers | BanMembers | Administrator
	if DefaultEveryone&managementBits != 0 {
		t.Errorf("DefaultEveryone should not include management permissions, got %s", DefaultEveryone.Debug())
	}
}
